package domain

// TaskAction is a run step the console can trigger on a task.
type TaskAction string

const (
	TaskActionInit   TaskAction = "init"
	TaskActionCoding TaskAction = "coding"
	TaskActionEval   TaskAction = "eval"
)

// ActionResult is what the console reports back after a run step.
type ActionResult struct {
	Action  TaskAction  `json:"action"`
	Message string      `json:"message"`
	Result  interface{} `json:"result"`
}
