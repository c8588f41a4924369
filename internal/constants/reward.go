package constants

// Reward curve parameters. A reward is
//
//	base * diminish(ordinal) * focus * streak * timeOfDay * rapid
//
// where diminish(n) = max(RewardFloor, 1/(1 + RewardDecay*(n-1))).
const (
	TaskCoinsLow    = 5
	TaskCoinsMedium = 10
	TaskCoinsHigh   = 20
	HabitBaseXP     = 10

	RewardDecay = 0.25 // per extra item of the same kind today
	RewardFloor = 0.3  // diminishing returns never drop below this factor

	FocusMultiplier = 1.5
	RapidMultiplier = 0.5

	StreakStep = 0.05 // per streak day
	StreakCap  = 10   // streak days beyond this add nothing

	EarlyBirdMultiplier = 1.1 // EarlyBirdStartHour <= hour < EarlyBirdEndHour
	EarlyBirdStartHour  = 5
	EarlyBirdEndHour    = 9
	NightOwlMultiplier  = 0.9 // hour < NightOwlEndHour
	NightOwlEndHour     = 5

	BalanceBonusXP = 5 // added once all four attributes were worked today
)

func init() {
	// Dampening must never pay more than the undampened reward
	if RapidMultiplier > 1.0 || RewardFloor > 1.0 || RewardFloor <= 0 {
		panic("RapidMultiplier and RewardFloor must be in (0, 1]")
	}
	if FocusMultiplier < 1.0 || EarlyBirdMultiplier < 1.0 {
		panic("bonus multipliers must be at least 1.0")
	}
}
