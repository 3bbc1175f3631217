package harness

import "github.com/akheron/nosedjango/screenshot"

// TestCase is the minimal surface the harness needs from a running test.
type TestCase interface {
	// ID returns the test's unique identifier, used in logs and artifact names.
	ID() string
}

// The interfaces below are the declared-on-test integration surface. Each is
// optional; the harness probes for them with type assertions and treats an
// absent interface as "not requested".

// TransactionPreference lets a test opt out of (or insist on) transactional
// isolation.
type TransactionPreference interface {
	UseTransaction() bool
}

// FixtureProvider declares named fixtures to load before the test body runs,
// in the declared order.
type FixtureProvider interface {
	Fixtures() []string
}

// URLConfProvider declares an URL-configuration override for the test.
type URLConfProvider interface {
	URLConf() string
}

// LiveServerRequester asks for the embedded live HTTP server.
type LiveServerRequester interface {
	NeedsLiveServer() bool
}

// IndexRequester asks for the search index to be built before the test.
type IndexRequester interface {
	BuildSearchIndex() bool
}

// DaemonRequester asks for a running search daemon during the test.
type DaemonRequester interface {
	RunSearchDaemon() bool
}

// ScreenshotRequester opts in to failure screenshots. The test must also
// implement screenshot.DriverSource; the attribute name defaults to "driver"
// unless DriverAttrProvider says otherwise.
type ScreenshotRequester interface {
	TakeFailureScreenshot() bool
}

// DriverAttrProvider names the attribute holding the browser driver.
type DriverAttrProvider interface {
	DriverAttr() string
}

// transactionPreference extracts the declared isolation preference, nil when
// the test declares none.
func transactionPreference(test TestCase) *bool {
	if pref, ok := test.(TransactionPreference); ok {
		v := pref.UseTransaction()
		return &v
	}
	return nil
}

// driverSource extracts the screenshot driver source and attribute name.
func driverSource(test TestCase) (screenshot.DriverSource, string) {
	source, ok := test.(screenshot.DriverSource)
	if !ok {
		return nil, ""
	}
	attr := screenshot.DefaultDriverAttr
	if provider, ok := test.(DriverAttrProvider); ok && provider.DriverAttr() != "" {
		attr = provider.DriverAttr()
	}
	return source, attr
}
