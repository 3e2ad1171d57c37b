package coordinator

import "time"

// nowFunc is the coordinator's time source for message tokens, agent
// activity, suppression deadlines, and outbound timestamps, and is
// overridable in tests. Timers are still armed against the real clock
// (time.Until, time.NewTimer).
var nowFunc = time.Now
