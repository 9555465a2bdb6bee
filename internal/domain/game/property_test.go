package game

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

// play runs a command script against a fresh game: 0 = score, 1 = advance
// inning, anything else = score again. Rejected commands are skipped.
func play(script []int, scores []int) *Game {
	g, _ := CreateNew("game-p", "Hawks", "Owls", 9)
	_ = g.Start()
	for i, op := range script {
		score := 0
		if len(scores) > 0 {
			score = scores[i%len(scores)]
		}
		switch op % 3 {
		case 1:
			_ = g.AdvanceInning()
		default:
			_ = g.UpdateScore(score, score/2)
		}
	}
	return g
}

func TestProperty_ReplayEquivalence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("replaying the emitted events reproduces the command state", prop.ForAll(
		func(script []int, scores []int) bool {
			g := play(script, scores)
			replayed, err := FromEvents(g.UncommittedEvents())
			if err != nil {
				return false
			}
			return replayed.State() == g.State() && replayed.GetVersion() == g.GetVersion()
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.SliceOf(gen.IntRange(0, 30)),
	))

	properties.Property("replay through stored envelopes matches in-memory replay", prop.ForAll(
		func(script []int, scores []int) bool {
			g := play(script, scores)
			events := g.UncommittedEvents()
			decoded := make([]aggregate.Event, len(events))
			for i, e := range events {
				stored, err := aggregate.Encode(e)
				if err != nil {
					return false
				}
				decoded[i] = Definition.DecodeStored(stored)
			}
			replayed, err := FromEvents(decoded)
			if err != nil {
				return false
			}
			want, got := g.State(), replayed.State()
			return got.HomeScore == want.HomeScore &&
				got.AwayScore == want.AwayScore &&
				got.Inning == want.Inning &&
				got.Half == want.Half &&
				got.Status == want.Status
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.SliceOf(gen.IntRange(0, 30)),
	))

	properties.TestingRun(t)
}

func TestProperty_Idempotence(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("a score update applied twice equals applying it once", prop.ForAll(
		func(home, away, priorHome int) bool {
			start := State{Status: StatusInProgress, HomeScore: priorHome}
			e := ScoreUpdated{EventMeta: aggregate.NewEventMeta(), GameID: "game-p", HomeScore: home, AwayScore: away}
			once := Apply(start, e)
			twice := Apply(once, e)
			return once == twice
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 50),
		gen.IntRange(0, 50),
	))

	properties.Property("an inning advance applied twice equals applying it once", prop.ForAll(
		func(inning int, bottom bool) bool {
			half := HalfTop
			if bottom {
				half = HalfBottom
			}
			e := InningAdvanced{EventMeta: aggregate.NewEventMeta(), GameID: "game-p", Inning: inning, Half: half}
			once := Apply(State{}, e)
			return Apply(once, e) == once
		},
		gen.IntRange(1, 12),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_VersionMonotonicity(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("k more events raise the version by exactly k", prop.ForAll(
		func(prefix, k int) bool {
			g := play(make([]int, prefix), []int{1})
			events := g.UncommittedEvents()
			base, err := Definition.Replay("game-p", events)
			if err != nil {
				return false
			}
			tail := make([]aggregate.Event, k)
			for i := range tail {
				tail[i] = ScoreUpdated{EventMeta: aggregate.NewEventMeta(), GameID: "game-p", HomeScore: i}
			}
			next := Definition.ReplayTail(base, tail)
			return next.GetVersion() == base.GetVersion()+k && base.GetVersion() == len(events)
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
