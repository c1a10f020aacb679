package ecs

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Stage is a named phase of a tick. Systems registered to a stage run together, and stages run in
// the world's stage order.
type Stage uint8

const (
	Startup Stage = iota
	PreUpdate
	Update
	PostUpdate
	Ui
	PreRender
	Render
	PostRender
	Shutdown
	stageCount
)

var stageNames = [stageCount]string{
	Startup:    "startup",
	PreUpdate:  "pre_update",
	Update:     "update",
	PostUpdate: "post_update",
	Ui:         "ui",
	PreRender:  "pre_render",
	Render:     "render",
	PostRender: "post_render",
	Shutdown:   "shutdown",
}

func (s Stage) String() string {
	if s < stageCount {
		return stageNames[s]
	}
	return "unknown"
}

// DefaultStages returns every stage in execution order.
func DefaultStages() []Stage {
	stages := make([]Stage, 0, stageCount)
	for s := Startup; s < stageCount; s++ {
		stages = append(stages, s)
	}
	return stages
}

// ParseStage resolves a stage by name. Matching ignores case, underscores and dashes, so
// "PreUpdate", "pre_update" and "pre-update" are the same stage.
func ParseStage(name string) (Stage, error) {
	want := normalizeStageName(name)
	for s := Startup; s < stageCount; s++ {
		if normalizeStageName(stageNames[s]) == want {
			return s, nil
		}
	}
	return 0, eris.Wrapf(ErrUnknownStage, "stage %q", name)
}

func normalizeStageName(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer("_", "", "-", "").Replace(name)
}

// tickStage reports whether s runs on every tick. Startup and Shutdown run once.
func tickStage(s Stage) bool {
	return s != Startup && s != Shutdown
}
