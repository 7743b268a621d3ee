package scheduler

import s "github.com/bnclabs/gosettings"

// Maxworkers maximum number of worker threads, bounded by the steal
// mask width.
const Maxworkers = 64

// Maxgroups maximum number of workgroups.
const Maxgroups = 32

// Defaultsettings for scheduler package.
//
// "ring.capacity" (int64, default: 64)
//	Capacity of each per-worker ring, power of 2.
//
// "spin.count" (int64, default: 30)
//	Number of drain/steal rounds an idle worker spins through
//	before parking on its wake event.
func Defaultsettings() s.Settings {
	return s.Settings{
		"ring.capacity": 64,
		"spin.count":    30,
	}
}
