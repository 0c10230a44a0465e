package service

// 阶段进度区间：阶段边界即观察者依赖的契约，不是随意数值
const (
	ProgressParseStart    = 0.0
	ProgressParseEnd      = 25.0
	ProgressMatchEnd      = 60.0
	ProgressOptimizeEnd   = 70.0
	ProgressGeneratePOEnd = 100.0
)

// 阶段标识
const (
	StageParse       = "parse"
	StageMatch       = "match"
	StageOptimize    = "optimize"
	StageGeneratePOs = "generate_pos"
)

// 阶段视图状态
const (
	StageStatePending   = "pending"
	StageStateRunning   = "running"
	StageStateCompleted = "completed"
)

// StageView 单阶段投影
type StageView struct {
	StageID string  `json:"stage_id"`
	State   string  `json:"state"`
	Percent float64 `json:"percent"` // 阶段内完成度0-100
}

type stageBand struct {
	id    string
	start float64
	end   float64
}

var stageBands = []stageBand{
	{StageParse, ProgressParseStart, ProgressParseEnd},
	{StageMatch, ProgressParseEnd, ProgressMatchEnd},
	{StageOptimize, ProgressMatchEnd, ProgressOptimizeEnd},
	{StageGeneratePOs, ProgressOptimizeEnd, ProgressGeneratePOEnd},
}

// ProjectProgress 纯函数：总进度百分比投影为各阶段离散视图。
// 相同输入恒产生相同输出，多个观察者独立轮询也能看到一致画面。
// progress=0全部pending，progress=100全部completed。
func ProjectProgress(progress float64) []StageView {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	views := make([]StageView, 0, len(stageBands))
	for _, b := range stageBands {
		v := StageView{StageID: b.id}
		switch {
		case progress >= b.end:
			v.State = StageStateCompleted
			v.Percent = 100
		case progress > b.start:
			v.State = StageStateRunning
			v.Percent = (progress - b.start) / (b.end - b.start) * 100
		default:
			v.State = StageStatePending
			v.Percent = 0
		}
		views = append(views, v)
	}
	return views
}

// stageProgress 阶段内完成度fraction∈[0,1]映射到总进度
func stageProgress(start, end, fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return start + (end-start)*fraction
}
