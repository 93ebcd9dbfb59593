package fabric

// State is the last fully-applied ActuatorsCommand for one fabric. A fresh
// state is cold (UseCache false) until the first successful apply.
type State struct {
	Fields   CommandFields
	UseCache bool
}

// NewState returns a cold state with all-zero defaults, as required when a
// fabric is first added.
func NewState() *State {
	zeroOp := OpModeBlock{}
	zeroTimer := TimerModeBlock{}
	blocks := &ActuatorModeBlocks{}
	for i := range blocks.Blocks {
		blocks.Blocks[i] = &ActuatorModeBlock{}
	}
	return &State{
		Fields: CommandFields{
			OpMode:         &zeroOp,
			ActuatorBlocks: blocks,
			TimerBlock:     &zeroTimer,
		},
		UseCache: false,
	}
}

// Diff reduces new against current: the op-mode block passes through
// unchanged; each actuator-mode block slot is kept only if new sets it and
// it differs from current's corresponding slot (an all-dropped result
// collapses to a nil ActuatorBlocks container); the timer block is kept
// only if it differs from current's as an optional.
func Diff(current, new CommandFields) CommandFields {
	reduced := CommandFields{OpMode: new.OpMode}

	if new.ActuatorBlocks != nil {
		merged := &ActuatorModeBlocks{}
		anyKept := false
		for i, nb := range new.ActuatorBlocks.Blocks {
			if nb == nil {
				continue
			}
			var cb *ActuatorModeBlock
			if current.ActuatorBlocks != nil {
				cb = current.ActuatorBlocks.Blocks[i]
			}
			if !equalActuatorBlock(cb, nb) {
				merged.Blocks[i] = nb
				anyKept = true
			}
		}
		if anyKept {
			reduced.ActuatorBlocks = merged
		}
	}

	if !equalTimerBlock(new.TimerBlock, current.TimerBlock) {
		reduced.TimerBlock = new.TimerBlock
	}

	return reduced
}

// Apply merges new into state unconditionally (the caller has already
// confirmed the reader accepted the command) and marks the cache warm. Any
// actuator-block slot new doesn't set keeps its prior value, so the merged
// state always has all eight slots populated.
func Apply(state *State, new CommandFields) {
	if new.OpMode != nil {
		state.Fields.OpMode = new.OpMode
	}

	if new.ActuatorBlocks != nil {
		merged := &ActuatorModeBlocks{}
		for i, nb := range new.ActuatorBlocks.Blocks {
			if nb != nil {
				merged.Blocks[i] = nb
			} else if state.Fields.ActuatorBlocks != nil {
				merged.Blocks[i] = state.Fields.ActuatorBlocks.Blocks[i]
			}
		}
		state.Fields.ActuatorBlocks = merged
	}

	if new.TimerBlock != nil {
		state.Fields.TimerBlock = new.TimerBlock
	}

	state.UseCache = true
}

// SelectPayload applies the dispatcher's cache policy: an explicit
// use_cache=false always sends the full command; otherwise, a warm state
// sends the diff against it, and a cold state sends the full command to
// warm it.
func SelectPayload(state *State, cmd ActuatorsCommand) CommandFields {
	wantsCache := cmd.UseCache == nil || *cmd.UseCache
	if wantsCache && state.UseCache {
		return Diff(state.Fields, cmd.CommandFields)
	}
	return cmd.CommandFields
}
