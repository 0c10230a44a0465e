package service

import (
	"reflect"
	"testing"
)

func TestProjectProgressAllPending(t *testing.T) {
	views := ProjectProgress(0)

	if len(views) != 4 {
		t.Fatalf("Expected 4 stages, got %d", len(views))
	}
	for _, v := range views {
		if v.State != StageStatePending {
			t.Errorf("Stage %s: expected pending at progress 0, got %s", v.StageID, v.State)
		}
		if v.Percent != 0 {
			t.Errorf("Stage %s: expected percent 0, got %v", v.StageID, v.Percent)
		}
	}
}

func TestProjectProgressAllCompleted(t *testing.T) {
	views := ProjectProgress(100)

	for _, v := range views {
		if v.State != StageStateCompleted {
			t.Errorf("Stage %s: expected completed at progress 100, got %s", v.StageID, v.State)
		}
		if v.Percent != 100 {
			t.Errorf("Stage %s: expected percent 100, got %v", v.StageID, v.Percent)
		}
	}
}

func TestProjectProgressMidMatch(t *testing.T) {
	// 42.5 is halfway through the match band (25-60)
	views := ProjectProgress(42.5)

	states := map[string]string{}
	for _, v := range views {
		states[v.StageID] = v.State
	}

	if states[StageParse] != StageStateCompleted {
		t.Errorf("Expected parse completed, got %s", states[StageParse])
	}
	if states[StageMatch] != StageStateRunning {
		t.Errorf("Expected match running, got %s", states[StageMatch])
	}
	if states[StageOptimize] != StageStatePending {
		t.Errorf("Expected optimize pending, got %s", states[StageOptimize])
	}
	if states[StageGeneratePOs] != StageStatePending {
		t.Errorf("Expected generate_pos pending, got %s", states[StageGeneratePOs])
	}

	for _, v := range views {
		if v.StageID == StageMatch && v.Percent != 50 {
			t.Errorf("Expected match percent 50, got %v", v.Percent)
		}
	}
}

func TestProjectProgressBandBoundary(t *testing.T) {
	// Exactly at a band end the stage is completed, the next one not yet started
	views := ProjectProgress(ProgressParseEnd)

	if views[0].State != StageStateCompleted {
		t.Errorf("Expected parse completed at 25, got %s", views[0].State)
	}
	if views[1].State != StageStatePending {
		t.Errorf("Expected match pending at 25, got %s", views[1].State)
	}
}

func TestProjectProgressClampsOutOfRange(t *testing.T) {
	if !reflect.DeepEqual(ProjectProgress(-5), ProjectProgress(0)) {
		t.Error("Expected negative progress to clamp to 0")
	}
	if !reflect.DeepEqual(ProjectProgress(150), ProjectProgress(100)) {
		t.Error("Expected progress above 100 to clamp to 100")
	}
}

func TestProjectProgressDeterministic(t *testing.T) {
	a := ProjectProgress(63.7)
	b := ProjectProgress(63.7)
	if !reflect.DeepEqual(a, b) {
		t.Error("Expected identical projections for identical input")
	}
}

func TestStageProgressMapping(t *testing.T) {
	if got := stageProgress(25, 60, 0); got != 25 {
		t.Errorf("Expected 25, got %v", got)
	}
	if got := stageProgress(25, 60, 1); got != 60 {
		t.Errorf("Expected 60, got %v", got)
	}
	if got := stageProgress(25, 60, 0.5); got != 42.5 {
		t.Errorf("Expected 42.5, got %v", got)
	}
	// Fraction is clamped to [0, 1]
	if got := stageProgress(25, 60, 1.5); got != 60 {
		t.Errorf("Expected clamp to 60, got %v", got)
	}
}
