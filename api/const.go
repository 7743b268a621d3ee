package api

// Advice hint to the host about the expected access pattern on a
// memory region.
type Advice byte

const (
	// AdviceNormal no special treatment.
	AdviceNormal Advice = iota
	// AdviceRandom random access pattern.
	AdviceRandom
	// AdviceSequential sequential access pattern.
	AdviceSequential
	// AdviceWillneed region will be accessed soon.
	AdviceWillneed
	// AdviceDontneed region won't be accessed soon.
	AdviceDontneed
)

// Protection bits on a memory region.
type Protection byte

const (
	// ProtectionNone no access.
	ProtectionNone Protection = 0
	// ProtectionRead region can be read.
	ProtectionRead Protection = 1
	// ProtectionWrite region can be written.
	ProtectionWrite Protection = 2
	// ProtectionReadWrite region can be read and written.
	ProtectionReadWrite Protection = ProtectionRead | ProtectionWrite
)
