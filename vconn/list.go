// File: vconn/list.go
// Author: momentics <momentics@gmail.com>
//
// Intrusive doubly-linked list replacing raw pointer splicing:
// membership is derivable from an elem's own
// state rather than tracked by a separate shadow boolean, so
// in_enabled_list-style flags can be audited against reality instead of
// trusted blindly.

package vconn

// elem is one list node, embedded by value inside VConnection for each
// list it can belong to (open, read-ready, write-ready, cop).
type elem struct {
	next, prev *elem
	owner      *VConnection
	list       *list
}

// InList reports whether this node is currently linked into some list.
func (e *elem) InList() bool { return e.list != nil }

// list is a minimal intrusive doubly-linked list of *VConnection, keyed
// off a caller-chosen elem field on each VConnection.
type list struct {
	head, tail *elem
	n          int
}

func (l *list) PushBack(e *elem) {
	if e.list == l {
		return
	}
	if e.list != nil {
		e.list.remove(e)
	}
	e.prev, e.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = e
	} else {
		l.head = e
	}
	l.tail = e
	e.list = l
	l.n++
}

func (l *list) Remove(e *elem) {
	if e.list != l {
		return
	}
	l.remove(e)
}

func (l *list) remove(e *elem) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev, e.next, e.list = nil, nil, nil
	l.n--
}

func (l *list) Len() int { return l.n }

// Drain removes and returns every member, in list order, leaving the list
// empty. Used by NetHandler to snapshot the ready lists for a drain pass.
func (l *list) Drain() []*VConnection {
	out := make([]*VConnection, 0, l.n)
	for e := l.head; e != nil; {
		next := e.next
		owner := e.owner
		e.prev, e.next, e.list = nil, nil, nil
		out = append(out, owner)
		e = next
	}
	l.head, l.tail, l.n = nil, nil, 0
	return out
}
