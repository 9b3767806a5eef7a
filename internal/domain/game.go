package domain

import (
	"errors"
	"fmt"
)

// Cell represents a board cell state.
type Cell uint8

const (
	Empty Cell = iota
	X
	O
)

func (c Cell) String() string {
	switch c {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return ""
	}
}

// Opponent returns the other player. Empty has no opponent.
func (c Cell) Opponent() Cell {
	switch c {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

// Board is a fixed 3x3 board stored row-major.
type Board [9]Cell

// Full reports whether no empty cell remains.
func (b Board) Full() bool {
	for _, c := range b {
		if c == Empty {
			return false
		}
	}
	return true
}

// Count returns how many cells hold c.
func (b Board) Count(c Cell) int {
	n := 0
	for _, v := range b {
		if v == c {
			n++
		}
	}
	return n
}

// Status is derived from a board, never stored.
type Status uint8

const (
	InProgress Status = iota
	Won
	Draw
)

func (s Status) String() string {
	switch s {
	case Won:
		return "won"
	case Draw:
		return "draw"
	default:
		return "in_progress"
	}
}

// Over reports whether moves are no longer accepted.
func (s Status) Over() bool { return s != InProgress }

// ErrInvalidMove is the only kind of rejection the engine produces.
// The more specific errors below all wrap it.
var ErrInvalidMove = errors.New("invalid move")

var (
	ErrOutOfBounds = fmt.Errorf("%w: out of bounds", ErrInvalidMove)
	ErrOccupied    = fmt.Errorf("%w: cell occupied", ErrInvalidMove)
	ErrGameOver    = fmt.Errorf("%w: game over", ErrInvalidMove)
)

// lines are checked in this order; the first match decides the winner.
var lines = [8][3]int{
	// rows
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	// cols
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	// diags
	{0, 4, 8}, {2, 4, 6},
}

// Winner returns the mark of the first complete line on b, or Empty.
// It works on any board, including snapshots handed back from history.
func Winner(b Board) Cell {
	for _, ln := range lines {
		if b[ln[0]] != Empty && b[ln[0]] == b[ln[1]] && b[ln[0]] == b[ln[2]] {
			return b[ln[0]]
		}
	}
	return Empty
}

// StatusOf derives the game status of b.
func StatusOf(b Board) Status {
	switch {
	case Winner(b) != Empty:
		return Won
	case b.Full():
		return Draw
	default:
		return InProgress
	}
}

// State is a read-only copy of an engine's state.
type State struct {
	Board   Board
	Turn    Cell
	History []Board
	Winner  Cell
	Status  Status
}

// Moves returns the number of moves recorded in history.
func (s State) Moves() int { return len(s.History) }

// Option configures an Engine.
type Option func(*Engine)

// WithTurnFromSnapshot makes JumpTo recompute the turn from the mark counts
// of the snapshot instead of keeping the current one.
func WithTurnFromSnapshot() Option {
	return func(e *Engine) { e.turnFromSnapshot = true }
}

// Engine holds one game session: the active board, whose turn it is, and
// the board after every applied move. It is not safe for concurrent use.
type Engine struct {
	board   Board
	turn    Cell
	history []Board

	turnFromSnapshot bool
}

// NewEngine returns a reset engine with X to move.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	e.Reset()
	return e
}

// Reset clears the board and history and gives the move back to X.
func (e *Engine) Reset() Board {
	e.board = Board{}
	e.turn = X
	e.history = nil
	return e.board
}

// Play places the current turn's mark at pos (0..8). On error nothing changes.
func (e *Engine) Play(pos int) (Board, Cell, error) {
	if StatusOf(e.board).Over() {
		return e.board, e.turn, ErrGameOver
	}
	if pos < 0 || pos >= len(e.board) {
		return e.board, e.turn, fmt.Errorf("%w: position %d", ErrOutOfBounds, pos)
	}
	if e.board[pos] != Empty {
		return e.board, e.turn, fmt.Errorf("%w: position %d", ErrOccupied, pos)
	}

	e.board[pos] = e.turn
	// Board is an array, so this appends a copy.
	e.history = append(e.history, e.board)
	e.turn = e.turn.Opponent()
	return e.board, e.turn, nil
}

// JumpTo makes snapshot the active board. History is left alone, and so is
// the turn unless the engine was built with WithTurnFromSnapshot.
func (e *Engine) JumpTo(snapshot Board) {
	e.board = snapshot
	if e.turnFromSnapshot {
		e.turn = turnFor(snapshot)
	}
}

func turnFor(b Board) Cell {
	if b.Count(X) > b.Count(O) {
		return O
	}
	return X
}

func (e *Engine) Board() Board { return e.board }

func (e *Engine) Turn() Cell { return e.turn }

// History returns a copy of the recorded snapshots, oldest first.
func (e *Engine) History() []Board {
	out := make([]Board, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) Status() Status { return StatusOf(e.board) }

// State returns a copy of everything a renderer needs.
func (e *Engine) State() State {
	return State{
		Board:   e.board,
		Turn:    e.turn,
		History: e.History(),
		Winner:  Winner(e.board),
		Status:  e.Status(),
	}
}
