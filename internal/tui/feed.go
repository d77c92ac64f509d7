package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smokyabdulrahman/prayer-clock/internal/countdown"
	"github.com/smokyabdulrahman/prayer-clock/internal/service"
)

// TickMsg carries one engine tick.
type TickMsg struct{ State countdown.State }

// RolloverMsg reports that the next prayer changed.
type RolloverMsg struct{ From, To countdown.Interval }

// DayMsg delivers a newly loaded day.
type DayMsg struct{ Day *service.Day }

// ErrMsg reports a refresh failure; the model keeps showing the last schedule.
type ErrMsg struct{ Err error }

// Feed bridges engine and service callbacks into the bubbletea loop.
// Tick and rollover sends never block: when the model falls behind, the
// newest tick is dropped and the next one supersedes it.
type Feed struct {
	ch   chan tea.Msg
	done chan struct{}
	once sync.Once
}

func NewFeed() *Feed {
	return &Feed{ch: make(chan tea.Msg, 16), done: make(chan struct{})}
}

var _ countdown.Observer = (*Feed)(nil)

func (f *Feed) OnTick(st countdown.State) { f.offer(TickMsg{State: st}) }

func (f *Feed) OnRollover(from, to countdown.Interval) { f.offer(RolloverMsg{From: from, To: to}) }

// Day queues d, waiting for room unless the feed is closed.
func (f *Feed) Day(d *service.Day) { f.send(DayMsg{Day: d}) }

// Error queues a refresh failure.
func (f *Feed) Error(err error) { f.offer(ErrMsg{Err: err}) }

func (f *Feed) offer(msg tea.Msg) {
	select {
	case f.ch <- msg:
	case <-f.done:
	default:
	}
}

func (f *Feed) send(msg tea.Msg) {
	select {
	case f.ch <- msg:
	case <-f.done:
	}
}

// Close unblocks pending senders and ends Wait.
func (f *Feed) Close() {
	f.once.Do(func() { close(f.done) })
}

// Wait returns a command that yields the next queued message.
func (f *Feed) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-f.ch:
			return msg
		case <-f.done:
			return nil
		}
	}
}
