/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/samber/lo"
)

// Role is a hidden identity dealt to one seat.
type Role int

const (
	Assassin Role = iota
	Merlin
	Mordred
	Morgana
	Oberon
	Percival
	Loyal
)

func (r Role) String() string {
	switch r {
	case Assassin:
		return "Assassin"
	case Merlin:
		return "Merlin"
	case Mordred:
		return "Mordred"
	case Morgana:
		return "Morgana"
	case Oberon:
		return "Oberon"
	case Percival:
		return "Percival"
	case Loyal:
		return "Loyal Servant"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

type Alliance int

const (
	Resistance Alliance = iota
	Spy
)

func (a Alliance) String() string {
	if a == Spy {
		return "Spy"
	}
	return "Resistance"
}

func (r Role) Alliance() Alliance {
	switch r {
	case Assassin, Mordred, Morgana, Oberon:
		return Spy
	default:
		return Resistance
	}
}

// rolePool is dealt by prefix: the player count alone decides which roles are in play.
var rolePool = [...]Role{
	Merlin, Assassin, Percival, Morgana, Loyal, Loyal, Oberon, Loyal, Loyal, Mordred,
}

const (
	minPlayers = 5
	maxPlayers = len(rolePool)
)

var ErrInvalidPlayerCount = errors.New("invalid player count")

// Deal returns a random permutation of the first players entries of the role pool.
func Deal(rng *rand.Rand, players int) ([]Role, error) {
	if players < minPlayers || players > maxPlayers {
		return nil, fmt.Errorf("%w: %d (must be between %d-%d)", ErrInvalidPlayerCount, players, minPlayers, maxPlayers)
	}

	roles := make([]Role, players)
	copy(roles, rolePool[:players])

	rng.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})

	return roles, nil
}

type Player struct {
	Name string
	Role Role
}

// Assignment is the dealt table of one room, indexed by seat number.
type Assignment struct {
	Players []Player
}

// Assign deals roles to names, keeping the given order as seat order.
func Assign(rng *rand.Rand, names []string) (*Assignment, error) {
	roles, err := Deal(rng, len(names))
	if err != nil {
		return nil, err
	}

	return &Assignment{
		Players: lo.Map(names, func(name string, i int) Player {
			return Player{Name: name, Role: roles[i]}
		}),
	}, nil
}

// Seat pairs a seat number with the display name sitting there.
type Seat struct {
	Index int
	Name  string
}

type viewKind int

const (
	viewNone viewKind = iota
	viewSpy
	viewMerlin
	viewPercival
)

// View is what one role is allowed to learn about the table.
type View struct {
	kind viewKind

	// Good holds the seats Merlin sees as good.
	Good []Seat
	// Evil holds the known spies, for Merlin and for the spies themselves.
	Evil []Seat
	// Candidates holds Merlin and Morgana, for Percival, in seat order.
	Candidates []Seat
}

func (a *Assignment) seats(keep func(Role) bool) []Seat {
	return lo.FilterMap(a.Players, func(p Player, i int) (Seat, bool) {
		return Seat{Index: i, Name: p.Name}, keep(p.Role)
	})
}

// View computes the information available to role over this table.
func (a *Assignment) View(role Role) View {
	switch role {
	case Assassin, Morgana, Mordred:
		return View{
			kind: viewSpy,
			Evil: a.seats(func(r Role) bool {
				return r.Alliance() == Spy && r != Oberon
			}),
		}
	case Merlin:
		// Mordred is hidden from Merlin and shows up among the good.
		knownSpy := func(r Role) bool {
			return r.Alliance() == Spy && r != Mordred
		}
		return View{
			kind: viewMerlin,
			Good: a.seats(func(r Role) bool { return !knownSpy(r) }),
			Evil: a.seats(knownSpy),
		}
	case Percival:
		return View{
			kind: viewPercival,
			Candidates: a.seats(func(r Role) bool {
				return r == Merlin || r == Morgana
			}),
		}
	default:
		return View{kind: viewNone}
	}
}

const noInformation = "you have no information"

// Text renders the view with every seat named.
func (v View) Text() string {
	return v.render(func(s Seat) string { return s.Name })
}

// TextFor renders the view for the player sitting at viewer, who is called "you".
func (v View) TextFor(viewer int) string {
	return v.render(func(s Seat) string {
		if s.Index == viewer {
			return "you"
		}
		return s.Name
	})
}

func (v View) render(label func(Seat) string) string {
	join := func(seats []Seat, sep string) string {
		return strings.Join(lo.Map(seats, func(s Seat, _ int) string { return label(s) }), sep)
	}

	switch v.kind {
	case viewSpy:
		return join(v.Evil, ", ") + " are all enemies"
	case viewMerlin:
		return join(v.Good, ", ") + " appear good\n" + join(v.Evil, ", ") + " appear evil"
	case viewPercival:
		return join(v.Candidates, " and ") + ": one is Merlin, the other is Morgana"
	default:
		return noInformation
	}
}

// newRand returns a generator seeded from the operating system.
func newRand() *rand.Rand {
	var seed [32]byte
	_, _ = crand.Read(seed[:])

	return rand.New(rand.NewChaCha8(seed))
}
