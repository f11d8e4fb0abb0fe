// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the epoll(7)-based poll-mode event reactor
// backing NetHandler's PollBinding registrations, plus the eventfd wake
// hook used by the cross-thread reenable path.
package reactor
