package model

import "testing"

func TestTransformWithinTolerance(t *testing.T) {
	t.Parallel()

	base := Transform{PositionX: 100, PositionY: 200, ScaleX: 1, ScaleY: 1, Alignment: 5, BoundsType: "OBS_BOUNDS_NONE"}

	tests := []struct {
		name      string
		other     Transform
		tolerance float64
		wantOK    bool
		wantDiffs []string
	}{
		{
			name:      "identical",
			other:     base,
			tolerance: 0.5,
			wantOK:    true,
		},
		{
			name:      "within tolerance",
			other:     Transform{PositionX: 100.3, PositionY: 200, ScaleX: 1, ScaleY: 1, Alignment: 5, BoundsType: "OBS_BOUNDS_NONE"},
			tolerance: 0.5,
			wantOK:    true,
		},
		{
			name:      "exceeds tolerance",
			other:     Transform{PositionX: 101, PositionY: 200, ScaleX: 1, ScaleY: 1, Alignment: 5, BoundsType: "OBS_BOUNDS_NONE"},
			tolerance: 0.5,
			wantOK:    false,
			wantDiffs: []string{"positionX"},
		},
		{
			name:      "discrete field differs despite zero numeric diff",
			other:     Transform{PositionX: 100, PositionY: 200, ScaleX: 1, ScaleY: 1, Alignment: 9, BoundsType: "OBS_BOUNDS_NONE"},
			tolerance: 0.5,
			wantOK:    false,
			wantDiffs: []string{"alignment"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ok, diffs := base.WithinTolerance(tc.other, tc.tolerance)
			if ok != tc.wantOK {
				t.Fatalf("WithinTolerance() ok = %v, want %v (diffs=%v)", ok, tc.wantOK, diffs)
			}
			if !ok && len(diffs) != len(tc.wantDiffs) {
				t.Fatalf("diffs = %v, want %v", diffs, tc.wantDiffs)
			}
		})
	}
}

func TestTransformPatchMerge(t *testing.T) {
	t.Parallel()

	base := Transform{PositionX: 1, PositionY: 2, ScaleX: 1, ScaleY: 1}
	newX := 99.0
	patch := TransformPatch{PositionX: &newX}

	merged := patch.Merge(base)
	if merged.PositionX != 99.0 {
		t.Fatalf("PositionX = %v, want 99.0", merged.PositionX)
	}
	if merged.PositionY != 2 {
		t.Fatalf("PositionY = %v, want unchanged 2", merged.PositionY)
	}
}

func TestSyncTargetSet(t *testing.T) {
	t.Parallel()

	s := DefaultSyncTargets()
	if !s.Contains(TargetSource) || !s.Contains(TargetProgram) {
		t.Fatalf("default set missing expected members: %v", s.Slice())
	}
	if s.Contains(TargetPreview) {
		t.Fatalf("default set should not contain preview: %v", s.Slice())
	}

	clone := s.Clone()
	clone[TargetPreview] = struct{}{}
	if s.Contains(TargetPreview) {
		t.Fatalf("mutating clone affected original set")
	}
}
