// Package filter produces the eligible counterpart set for a user.
package filter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

// PassCooldownDays is how long a PASSED introduction keeps the pair apart.
const PassCooldownDays = 7

// DateLayout is the match-date format used by candidate rows.
const DateLayout = "2006-01-02"

// BlockChecker is the block predicate collaborator. Related lets a whole
// candidate scan resolve blocks in one lookup.
type BlockChecker interface {
	IsBlocked(ctx context.Context, a, b db.User) (bool, error)
	Related(ctx context.Context, user db.User) (map[uint64]struct{}, error)
}

// Pipeline applies the hard filters, in order:
//
//	self, block (either direction), active match, passed in the last 7 days,
//	seeking/gender (both directions), completed questionnaire.
//
// Paused or inactive users never appear on either side.
type Pipeline struct {
	users      *repository.UserRepository
	answers    *repository.QuestionnaireRepository
	matches    *repository.MatchRepository
	candidates *repository.CandidateRepository
	blocks     BlockChecker
}

func NewPipeline(appCtx *app.AppContext, blocks BlockChecker) *Pipeline {
	return &Pipeline{
		users:      repository.NewUserRepository(appCtx.DB),
		answers:    repository.NewQuestionnaireRepository(appCtx.DB),
		matches:    repository.NewMatchRepository(appCtx.DB),
		candidates: repository.NewCandidateRepository(appCtx.DB),
		blocks:     blocks,
	}
}

// Eligible returns every user the requester may be introduced to on the given day.
// The result is unranked and ordered by user id.
func (p *Pipeline) Eligible(ctx context.Context, user db.User, day time.Time) ([]db.User, error) {
	if !matchable(user) {
		return nil, nil
	}
	answered, err := p.answers.UsersWithAnswers(ctx, []uint64{user.ID})
	if err != nil {
		return nil, fmt.Errorf("requester answers: %w", err)
	}
	if _, ok := answered[user.ID]; !ok {
		return nil, nil
	}

	others, err := p.users.ListOthers(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	matched, err := p.matches.ActiveCounterparts(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("active matches: %w", err)
	}
	blocked, err := p.blocks.Related(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("block check: %w", err)
	}
	since := day.UTC().AddDate(0, 0, -PassCooldownDays).Format(DateLayout)
	passed, err := p.candidates.PassedSince(ctx, user.ID, since)
	if err != nil {
		return nil, fmt.Errorf("pass history: %w", err)
	}

	var survivors []db.User
	for _, other := range others {
		if other.ID == user.ID || !matchable(other) {
			continue
		}
		if _, ok := blocked[other.ID]; ok {
			continue
		}
		if _, ok := matched[other.ID]; ok {
			continue
		}
		if _, ok := passed[other.ID]; ok {
			continue
		}
		if !SeekingCompatible(user, other) {
			continue
		}
		survivors = append(survivors, other)
	}

	ids := make([]uint64, 0, len(survivors))
	for _, u := range survivors {
		ids = append(ids, u.ID)
	}
	completed, err := p.answers.UsersWithAnswers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("candidate answers: %w", err)
	}

	out := survivors[:0]
	for _, u := range survivors {
		if _, ok := completed[u.ID]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// IsEligible reports whether b is in a's eligible set.
func (p *Pipeline) IsEligible(ctx context.Context, a, b db.User, day time.Time) (bool, error) {
	eligible, err := p.Eligible(ctx, a, day)
	if err != nil {
		return false, err
	}
	for _, u := range eligible {
		if u.ID == b.ID {
			return true, nil
		}
	}
	return false, nil
}

func matchable(u db.User) bool {
	return u.Active && !u.MatchingPaused
}

// SeekingCompatible checks the stated seeking preference of each side against
// the other's gender. A side with no preference, or facing an unknown gender, passes.
func SeekingCompatible(a, b db.User) bool {
	return wants(a.Seeking, b.Gender) && wants(b.Seeking, a.Gender)
}

func wants(seeking, gender string) bool {
	code := NormalizeGender(gender)
	switch strings.ToUpper(strings.TrimSpace(seeking)) {
	case "", "EVERYONE", "ANY", "ALL":
		return true
	case "MEN", "MAN", "MALE":
		return code == "" || code == "M"
	case "WOMEN", "WOMAN", "FEMALE":
		return code == "" || code == "F"
	default:
		return true
	}
}

// NormalizeGender maps free-form gender values onto M / F, or "" when unknown.
func NormalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "m", "male", "man", "men":
		return "M"
	case "f", "female", "woman", "women":
		return "F"
	default:
		return ""
	}
}
