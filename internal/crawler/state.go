package crawler

import (
	"sync"
)

// PageVerdict is the controller's decision for an arriving listing page.
type PageVerdict int

const (
	// PageProcess means the page counts against the budget and gets parsed.
	PageProcess PageVerdict = iota

	// PageDuplicate means this final URL was already processed.
	PageDuplicate

	// PageBeyondBudget means the page budget was spent before this page.
	PageBeyondBudget
)

// FilmVerdict is the controller's decision for a candidate film URL.
type FilmVerdict int

const (
	// FilmSchedule means the URL was claimed and counts against the budget.
	FilmSchedule FilmVerdict = iota

	// FilmDuplicate means the URL was already scheduled.
	FilmDuplicate

	// FilmBudgetExhausted means no items are left in the budget.
	FilmBudgetExhausted
)

// State tracks what one crawl run has seen and spent. Listing pages are
// keyed by the response's final URL so redirect targets dedup correctly;
// film URLs are keyed as scheduled.
type State struct {
	maxItems int
	maxPages int

	mu             sync.Mutex
	seenListPages  map[string]bool
	seenFilms      map[string]bool
	pagesCrawled   int
	itemsScheduled int
	itemsScraped   int
}

// NewState creates crawl state with the given budgets.
func NewState(maxItems, maxPages int) *State {
	return &State{
		maxItems:      maxItems,
		maxPages:      maxPages,
		seenListPages: make(map[string]bool),
		seenFilms:     make(map[string]bool),
	}
}

// BeginListPage records the arrival of a listing response and decides
// whether to process it. Every first-seen page moves the page counter,
// including the one that crosses the budget.
func (s *State) BeginListPage(finalURL string) PageVerdict {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenListPages[finalURL] {
		return PageDuplicate
	}
	s.seenListPages[finalURL] = true

	s.pagesCrawled++
	if s.pagesCrawled > s.maxPages {
		return PageBeyondBudget
	}
	return PageProcess
}

// ScheduleFilm decides whether a candidate film URL gets fetched. The
// budget is checked before the duplicate set, so an exhausted budget stops
// the caller's loop rather than skipping entries.
func (s *State) ScheduleFilm(url string) FilmVerdict {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.itemsScheduled >= s.maxItems {
		return FilmBudgetExhausted
	}
	if s.seenFilms[url] {
		return FilmDuplicate
	}
	s.seenFilms[url] = true
	s.itemsScheduled++
	return FilmSchedule
}

// SeenListPage reports whether a listing URL was already processed.
func (s *State) SeenListPage(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seenListPages[url]
}

// PageBudgetReached reports whether further pagination is pointless.
func (s *State) PageBudgetReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagesCrawled >= s.maxPages
}

// RecordItem counts one emitted film and reports whether the item budget
// is now spent.
func (s *State) RecordItem() (total int, budgetReached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.itemsScraped++
	return s.itemsScraped, s.itemsScraped >= s.maxItems
}

// PagesCrawled returns how many first-seen listing pages have arrived.
func (s *State) PagesCrawled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagesCrawled
}

// ItemsScheduled returns how many film fetches were claimed.
func (s *State) ItemsScheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsScheduled
}

// ItemsScraped returns how many films were emitted.
func (s *State) ItemsScraped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsScraped
}
