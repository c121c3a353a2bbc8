package annotation

import (
	"sync"

	"github.com/meridian-health/chartcore/pkg/common/models"
)

// Patch carries the fields of an annotation a caller wants to change; nil
// fields are left as they were.
type Patch struct {
	Note *string
	Mark *models.MarkState
}

// Index maps report lens name -> content key -> annotation for the patient's
// current in-progress report. It lives in memory between flushes; persistence
// is a snapshot stored inside a finalized-report history entry.
//
// When report text changes, annotations whose key no longer appears anywhere
// simply fail every lookup until identical text reappears. Nothing is ever
// deleted by a regeneration; it may only become invisible.
type Index struct {
	mu    sync.Mutex
	views map[string]map[string]models.Annotation
}

func NewIndex() *Index {
	return &Index{views: make(map[string]map[string]models.Annotation)}
}

// Get returns the annotation for (lens, key). Missing and default are the
// same thing: callers always receive an empty note with a normal mark when
// nothing was stored.
func (i *Index) Get(lens, key string) models.Annotation {
	i.mu.Lock()
	defer i.mu.Unlock()

	if view, ok := i.views[lens]; ok {
		if ann, ok := view[key]; ok {
			if ann.Mark == "" {
				ann.Mark = models.MarkNormal
			}
			return ann
		}
	}
	return models.Annotation{Mark: models.MarkNormal}
}

// Set merges the patch into the existing entry for (lens, key), preserving
// fields the patch does not supply.
func (i *Index) Set(lens, key string, patch Patch) {
	i.mu.Lock()
	defer i.mu.Unlock()

	ann := i.lookup(lens, key)
	if patch.Note != nil {
		ann.Note = *patch.Note
	}
	if patch.Mark != nil {
		ann.Mark = *patch.Mark
	}
	i.store(lens, key, ann)
}

// ToggleMark cycles normal -> accepted -> rejected -> normal and returns the
// new state. A 3-state ring, not a boolean: rejected means the clinician
// actively struck the content, untouched means no opinion yet.
func (i *Index) ToggleMark(lens, key string) models.MarkState {
	i.mu.Lock()
	defer i.mu.Unlock()

	ann := i.lookup(lens, key)
	ann.Mark = ann.Mark.Next()
	i.store(lens, key, ann)
	return ann.Mark
}

// Snapshot returns a deep copy of the whole index for persistence inside a
// finalized-report entry.
func (i *Index) Snapshot() models.AnnotationSnapshot {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make(models.AnnotationSnapshot, len(i.views))
	for lens, view := range i.views {
		keys := make(map[string]models.Annotation, len(view))
		for key, ann := range view {
			keys[key] = ann
		}
		out[lens] = keys
	}
	return out
}

// Restore replaces the index contents from a persisted snapshot. A nil
// snapshot resets to empty (no finalized report exists yet).
func (i *Index) Restore(snap models.AnnotationSnapshot) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.views = make(map[string]map[string]models.Annotation, len(snap))
	for lens, keys := range snap {
		view := make(map[string]models.Annotation, len(keys))
		for key, ann := range keys {
			view[key] = ann
		}
		i.views[lens] = view
	}
}

// Empty reports whether the index holds no annotations at all.
func (i *Index) Empty() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, view := range i.views {
		if len(view) > 0 {
			return false
		}
	}
	return true
}

func (i *Index) lookup(lens, key string) models.Annotation {
	if view, ok := i.views[lens]; ok {
		if ann, ok := view[key]; ok {
			if ann.Mark == "" {
				ann.Mark = models.MarkNormal
			}
			return ann
		}
	}
	return models.Annotation{Mark: models.MarkNormal}
}

func (i *Index) store(lens, key string, ann models.Annotation) {
	view, ok := i.views[lens]
	if !ok {
		view = make(map[string]models.Annotation)
		i.views[lens] = view
	}
	view[key] = ann
}
