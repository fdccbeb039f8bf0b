package slave

import "testing"

func TestDriftDetectorTickSkipsWithNoBaseline(t *testing.T) {
	t.Parallel()

	// obsClient is nil: tick must return before touching it when
	// ExpectedState has never received a state_sync.
	d := NewDriftDetector(nil, NewExpectedState(), nil, nil, nil)
	d.tick() // must not panic
}

func TestDriftDetectorStartStopIdempotent(t *testing.T) {
	t.Parallel()

	d := NewDriftDetector(nil, NewExpectedState(), nil, nil, nil)
	d.Start()
	d.Start() // second call before Stop is a no-op
	d.Stop()
	d.Stop() // second Stop must not panic
}
