package tui

import "github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/callback"

type feedReadyMsg struct {
	feed *Feed
	err  error
}

type frameMsg struct {
	frame callback.FeedFrame
}

type feedClosedMsg struct {
	err error
}

type reconnectMsg struct{}

type actionDoneMsg struct {
	action string
	err    error
}

type statusClearMsg struct {
	seq int
}
