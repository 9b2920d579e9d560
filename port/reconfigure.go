package port

// ReconfigureDeps installs freshly re-queried attributes after a Config
// rerun and decides whether the already-completed Depend stage must run
// again: the six dependency
// vectors (Fetch/Extract/Patch/Build/Lib/Run) are compared field-by-field
// against the prior attributes, and Depend's completion is invalidated
// only if one of them changed. An unchanged dependency set leaves Depend
// completed even though other attributes (Distfiles, Options, ...) may
// have legitimately changed alongside it.
func (p *Port) ReconfigureDeps(newAttrs Attributes) {
	changed := dependsChanged(&p.Attrs, &newAttrs)
	p.Attrs = newAttrs

	if !changed {
		return
	}

	delete(p.stagesCompleted, StageDepend)
	delete(p.depReady, StageDepend)
}

func dependsChanged(old, new *Attributes) bool {
	for _, kind := range AllDependKinds() {
		if !tuplesEqual(old.DependsFor(kind), new.DependsFor(kind)) {
			return true
		}
	}
	return false
}

func tuplesEqual(a, b []DependTuple) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
