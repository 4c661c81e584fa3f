package schedule

import "time"

// SubmissionCutoff is how long before a post device submissions stop being
// reported as "on time".
const SubmissionCutoff = 4 * time.Minute

// Window is the informational device-submission window before a post.
type Window struct {
	Opens  time.Time
	Closes time.Time
	Post   time.Time
}

// Contains reports whether t falls inside the window (inclusive).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Opens) && !t.After(w.Closes)
}

// windowFor opens at the top of the hour before the post hour and closes
// SubmissionCutoff before the post. For 23:59 that is 22:00-23:55.
func windowFor(post time.Time) Window {
	return Window{
		Opens:  post.Truncate(time.Hour).Add(-time.Hour),
		Closes: post.Add(-SubmissionCutoff),
		Post:   post,
	}
}

// SubmissionWindow returns the window that contains now, if any.
func (c *Calculator) SubmissionWindow(cfg Config, now time.Time) (Window, bool) {
	post, ok := c.Next(cfg, now.Add(-2*time.Hour))
	if !ok {
		return Window{}, false
	}
	w := windowFor(post.Timestamp)
	if !w.Contains(now) {
		return Window{}, false
	}
	return w, true
}

// NextSubmissionWindow returns the first window that opens after now.
func (c *Calculator) NextSubmissionWindow(cfg Config, now time.Time) (Window, bool) {
	from := now
	for i := 0; i < 3; i++ {
		post, ok := c.Next(cfg, from)
		if !ok {
			return Window{}, false
		}
		w := windowFor(post.Timestamp)
		if w.Opens.After(now) {
			return w, true
		}
		from = post.Timestamp
	}
	return Window{}, false
}
