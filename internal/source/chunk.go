package source

import "time"

// SplitWindow cuts an inclusive date window into contiguous chunks of at
// most maxDays calendar days each, oldest first. Chunks never overlap and
// their union is exactly the input window.
func SplitWindow(win Window, maxDays int) []Window {
	if maxDays < 1 {
		maxDays = 1
	}
	from := truncateDay(win.From)
	to := truncateDay(win.To)
	if to.Before(from) {
		return nil
	}

	var chunks []Window
	for cur := from; !cur.After(to); {
		end := cur.AddDate(0, 0, maxDays-1)
		if end.After(to) {
			end = to
		}
		chunks = append(chunks, Window{From: cur, To: end})
		cur = end.AddDate(0, 0, 1)
	}
	return chunks
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
