package criteria

import (
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

// Mutation is a pure edit of search criteria.
type Mutation func(*types.SearchCriteria)

// Store is the local, proposed copy of what the player wants to search for.
// With no party it is the only source of truth. With a party it is the
// party's replicated criteria with any unsent local edits layered on top.
type Store struct {
	criteria types.SearchCriteria
	step     types.WizardStep
}

func NewStore(initial types.SearchCriteria) *Store {
	return &Store{criteria: initial.Clone()}
}

func (s *Store) Criteria() types.SearchCriteria { return s.criteria.Clone() }

func (s *Store) Step() types.WizardStep { return s.step }

func (s *Store) SetStep(step types.WizardStep) { s.step = step }

func (s *Store) Mutate(f Mutation) {
	f(&s.criteria)
}

// Rebase replaces local criteria with the backend's copy and replays edits
// that have not been confirmed yet.
func (s *Store) Rebase(confirmed types.SearchCriteria, unsent []Mutation) {
	next := confirmed.Clone()
	for _, f := range unsent {
		f(&next)
	}
	s.criteria = next
}

// Casual returns only the casual-map part of the criteria, which is what gets saved.
func (s *Store) Casual() []string {
	return s.Criteria().CasualMaps
}

func SetMapSelected(name string, selected bool) Mutation {
	return func(c *types.SearchCriteria) { c.SetMapSelected(name, selected) }
}

func SetMissionSelected(name string, selected bool) Mutation {
	return func(c *types.SearchCriteria) { c.SetMissionSelected(name, selected) }
}

func SetLateJoin(ok bool) Mutation {
	return func(c *types.SearchCriteria) { c.LateJoinOK = ok }
}

func SetMode(m types.Mode) Mutation {
	return func(c *types.SearchCriteria) { c.Mode = m }
}

func SetCustomPingTolerance(ms uint32) Mutation {
	return func(c *types.SearchCriteria) { c.CustomPingTolerance = ms }
}

func SetPlayForBraggingRights(on bool) Mutation {
	return func(c *types.SearchCriteria) { c.PlayForBraggingRights = on }
}

func SetLadderGroup(g types.MatchGroup) Mutation {
	return func(c *types.SearchCriteria) { c.LadderGroup = g }
}

func SetQuickplayCategory(cat string) Mutation {
	return func(c *types.SearchCriteria) { c.QuickplayCategory = cat }
}

// ReplaceCasualMaps swaps the whole casual selection, used when loading a saved file.
func ReplaceCasualMaps(maps []string) Mutation {
	return func(c *types.SearchCriteria) {
		c.CasualMaps = nil
		for _, m := range maps {
			c.SetMapSelected(m, true)
		}
	}
}
