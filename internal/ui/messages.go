package ui

import (
	"mediaq/internal/model"
	"mediaq/internal/progress"
	"mediaq/internal/task"
)

type listingsMsg struct {
	Listings []*model.Listing
	Err      error
}

type tasksSubmittedMsg struct {
	Action string
	Tasks  []*task.Task
	Err    error
}

type taskUpdateMsg struct {
	U progress.Update
}

type taskLogMsg struct {
	L progress.Log
}

type taskResultMsg struct {
	R progress.Result
}

type cancelledMsg struct {
	ID  string
	Err error
}

type quitMsg struct{}
