// Package dispatch decides which external conversion/quantization backend
// a build uses. The policy is an ordered table of (predicate, decision)
// pairs evaluated top-down; precedence is a property of the table, not of
// control flow, so it can be read and tested rule by rule.
package dispatch

import (
	"edgeforge/pkg/types"
)

// facts is what the rule predicates are allowed to see.
type facts struct {
	passthrough bool
	class       BoardClass
	task        types.TaskType
}

type outcome struct {
	backend   types.Backend
	rationale types.Rationale
}

type rule struct {
	name string
	when func(f facts) bool
	then outcome
}

// The decision table. Order is a correctness invariant: the passthrough
// override must sit above every accelerator rule so a user-requested
// unquantized build is never hijacked by NPU detection.
var rules = []rule{
	{
		name: "passthrough override",
		when: func(f facts) bool { return f.passthrough },
		then: outcome{types.BackendGGUF, types.RationalePassthrough},
	},
	{
		name: "high-tier npu, llm",
		when: func(f facts) bool { return f.class == ClassHighTier && f.task == types.TaskLLM },
		then: outcome{types.BackendRKLLM, types.RationaleStrongNPULLM},
	},
	{
		name: "high-tier npu, non-llm",
		when: func(f facts) bool { return f.class == ClassHighTier },
		then: outcome{types.BackendRKNN, types.RationaleStrongNPUTask},
	},
	{
		name: "low-tier npu, llm fallback",
		when: func(f facts) bool { return f.class == ClassLowTier && f.task == types.TaskLLM },
		then: outcome{types.BackendGGUF, types.RationaleWeakNPULLMFallback},
	},
	{
		name: "low-tier npu, non-llm",
		when: func(f facts) bool { return f.class == ClassLowTier },
		then: outcome{types.BackendRKNN, types.RationaleWeakNPUTask},
	},
	{
		name: "cpu default",
		when: func(f facts) bool { return true },
		then: outcome{types.BackendGGUF, types.RationaleCPUDefault},
	},
}

// Dispatcher resolves backend decisions against a board table. The zero
// table means the built-in one. Dispatch itself is pure: it holds no
// per-call state and is safe for concurrent use.
type Dispatcher struct {
	boards BoardTable
}

func NewDispatcher(boards BoardTable) *Dispatcher {
	if boards == nil {
		boards = DefaultBoardTable()
	}
	return &Dispatcher{boards: boards}
}

// Dispatch maps (profile, task, quant request) to a backend decision.
// It never fails: unknown accelerators fall through to the CPU backend
// and unknown quantization tokens take the backend default with a
// warning, because dispatch is policy, not validation.
func (d *Dispatcher) Dispatch(profile *types.HardwareProfile, task types.TaskType, quantRequest string) types.BackendDecision {
	f := facts{
		passthrough: isPassthrough(quantRequest),
		class:       ClassUnknown,
		task:        task,
	}
	if profile.HasAccelerator() {
		f.class = d.boards.Classify(profile.Accelerator.Model)
	}

	var o outcome
	for _, r := range rules {
		if r.when(f) {
			o = r.then
			break
		}
	}

	decision := types.BackendDecision{
		Backend:     o.backend,
		Rationale:   o.rationale,
		Passthrough: f.passthrough,
	}
	if f.passthrough {
		decision.NormalizedQuant = FP16Passthrough
		return decision
	}

	token, warning := normalizeQuant(o.backend, quantRequest)
	decision.NormalizedQuant = token
	if warning != "" {
		decision.Warnings = append(decision.Warnings, warning)
	}
	return decision
}

// ClassifyBoard resolves a board id or accelerator model string against
// the dispatcher's table.
func (d *Dispatcher) ClassifyBoard(model string) BoardClass {
	return d.boards.Classify(model)
}

// RuleNames lists the decision table in evaluation order, for audit
// output (`edgeforge plan --explain` and the API expose it).
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}
