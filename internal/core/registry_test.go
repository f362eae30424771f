package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewRegistry()
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) add(identity string) (*Session, *peer) {
	sess, p := newTestSession(s.T(), identity, SessionOptions{})
	s.Require().NoError(s.registry.Add(sess))
	return sess, p
}

func (s *RegistrySuite) TestAdmission() {
	s.Run("rejects second session for an online identity", func() {
		s.add("alice")

		dup, _ := newTestSession(s.T(), "alice", SessionOptions{})
		err := s.registry.Add(dup)
		s.Require().ErrorIs(err, ErrAlreadyOnline)

		var rejected *RejectedError
		s.Require().True(errors.As(err, &rejected))
		s.Equal(ErrCodeAlreadyOnline, rejected.Code)
	})

	s.Run("rejects banned identity", func() {
		s.registry.Ban("mallory", "")

		sess, _ := newTestSession(s.T(), "mallory", SessionOptions{})
		s.Require().ErrorIs(s.registry.Add(sess), ErrBanned)
		s.NotContains(s.registry.Online(), "mallory")
	})
}

func (s *RegistrySuite) TestConcurrentAddSameIdentity() {
	const attempts = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for range attempts {
		sess, _ := newTestSession(s.T(), "alice", SessionOptions{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.registry.Add(sess)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrAlreadyOnline):
				rejected++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(attempts-1, rejected)
	s.Equal([]string{"alice"}, s.registry.Online())
}

func (s *RegistrySuite) TestRemoveSessionIsIdempotent() {
	_, p := s.add("bob")

	s.True(s.registry.RemoveSession("bob"))
	s.False(s.registry.RemoveSession("bob"))
	s.False(s.registry.RemoveSession("never-seen"))
	s.Empty(s.registry.Online())
	mustClosed(s.T(), p)
}

func (s *RegistrySuite) TestReleaseOnlyRemovesCurrentSession() {
	old, _ := s.add("carol")
	s.Require().True(s.registry.RemoveSession("carol"))

	current, _ := s.add("carol")

	s.False(s.registry.Release(old))
	s.Equal([]string{"carol"}, s.registry.Online())
	s.True(s.registry.Release(current))
	s.Empty(s.registry.Online())
}

func (s *RegistrySuite) TestBanRemovesOnlineSession() {
	_, p := s.add("eve")

	s.True(s.registry.Ban("eve", "You have been banned.\n"))
	s.True(s.registry.IsBanned("eve"))
	s.NotContains(s.registry.Online(), "eve")
	mustLine(s.T(), p, "You have been banned.")
	mustClosed(s.T(), p)

	again, _ := newTestSession(s.T(), "eve", SessionOptions{})
	s.ErrorIs(s.registry.Add(again), ErrBanned)
}

func (s *RegistrySuite) TestBanNeverObservedOnline() {
	stop := make(chan struct{})
	violations := make(chan string, 1)

	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if s.registry.IsBanned("zed") {
				for _, name := range s.registry.Online() {
					if name == "zed" {
						select {
						case violations <- name:
						default:
						}
					}
				}
			}
		}
	}()

	s.add("zed")
	s.registry.Ban("zed", "")
	close(stop)

	select {
	case name := <-violations:
		s.Failf("banned identity observed online", "identity %s", name)
	default:
	}
}

func (s *RegistrySuite) TestMute() {
	s.False(s.registry.IsMuted("bob"))

	s.registry.Mute("bob")
	s.True(s.registry.IsMuted("bob"))

	s.registry.Unmute("bob")
	s.False(s.registry.IsMuted("bob"))

	s.registry.Unmute("bob")
	s.False(s.registry.IsMuted("bob"))
}

func (s *RegistrySuite) TestWarningsKeepOrder() {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.registry.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	s.registry.Warn("dave", "spam")
	s.registry.Warn("dave", "spam")
	s.registry.Warn("dave", "caps")

	got := s.registry.Warnings("dave")
	s.Require().Len(got, 3)
	s.Equal("spam", got[0].Reason)
	s.Equal("spam", got[1].Reason)
	s.Equal("caps", got[2].Reason)
	s.True(got[0].At.Before(got[2].At))

	empty := s.registry.Warnings("nobody")
	s.NotNil(empty)
	s.Empty(empty)
}

func (s *RegistrySuite) TestModerationOutlivesSession() {
	s.add("frank")
	s.registry.Mute("frank")
	s.registry.Warn("frank", "rude")
	s.Require().True(s.registry.RemoveSession("frank"))

	s.True(s.registry.IsMuted("frank"))
	s.Len(s.registry.Warnings("frank"), 1)
}

func (s *RegistrySuite) TestNotify() {
	_, p := s.add("gina")

	s.True(s.registry.Notify("gina", "WARNING: calm down\n"))
	mustLine(s.T(), p, "WARNING: calm down")
	s.False(s.registry.Notify("offline", "hello\n"))
}

func (s *RegistrySuite) TestClear() {
	_, p1 := s.add("a1")
	_, p2 := s.add("a2")
	s.registry.Mute("a1")

	s.Equal(2, s.registry.Clear("Server is shutting down.\n"))
	s.Empty(s.registry.Online())
	s.True(s.registry.IsMuted("a1"))

	for _, p := range []*peer{p1, p2} {
		mustLine(s.T(), p, "Server is shutting down.")
		mustClosed(s.T(), p)
	}
}

func (s *RegistrySuite) TestRestore() {
	_, p := s.add("harry")

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s.registry.Restore(Moderation{
		Banned:   []string{"harry"},
		Muted:    []string{"ivy"},
		Warnings: map[string][]Warning{"ivy": {{Reason: "old", At: at}}},
	})

	s.True(s.registry.IsBanned("harry"))
	s.Empty(s.registry.Online())
	mustClosed(s.T(), p)

	m := s.registry.Moderation()
	s.Equal([]string{"harry"}, m.Banned)
	s.Equal([]string{"ivy"}, m.Muted)
	s.Equal([]Warning{{Reason: "old", At: at}}, m.Warnings["ivy"])
}
