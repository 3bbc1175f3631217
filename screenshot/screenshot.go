// Package screenshot saves browser-driver screenshots when an opted-in test
// fails or errors. The screenshot directory is created on demand and never
// destroyed, so artifacts survive the run for inspection.
package screenshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/akheron/nosedjango/logger"
)

// Driver is the minimal browser-driver surface the capturer needs.
type Driver interface {
	SaveScreenshot(path string) error
}

// DriverSource exposes a named driver from a test object. Tests that opt in
// to screenshots implement this; the attribute name defaults to "driver".
type DriverSource interface {
	BrowserDriver(name string) (Driver, error)
}

// DefaultDriverAttr is the driver attribute looked up when a test does not
// name one.
const DefaultDriverAttr = "driver"

// Capturer saves failure screenshots into a directory.
type Capturer struct {
	dir string
	log *logger.Logger
}

// NewCapturer creates a capturer writing into dir.
func NewCapturer(dir string, log *logger.Logger) *Capturer {
	return &Capturer{
		dir: dir,
		log: log.WithComponent("screenshot"),
	}
}

// Dir returns the screenshot directory.
func (c *Capturer) Dir() string { return c.dir }

// Capture saves a screenshot named after the test identifier. A failed driver
// lookup is reported via the log and swallowed; a test that cannot produce a
// screenshot still gets its ordinary failure report.
func (c *Capturer) Capture(testID string, source DriverSource, driverAttr string) {
	if driverAttr == "" {
		driverAttr = DefaultDriverAttr
	}

	driver, err := source.BrowserDriver(driverAttr)
	if err != nil || driver == nil {
		c.log.Error("Error attempting to take failure screenshot", map[string]interface{}{
			logger.FieldTest: testID,
			"driver_attr":    driverAttr,
		})
		return
	}

	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		c.log.Error("Failed to create screenshot directory", logger.ErrorFields("mkdir", err))
		return
	}

	path := filepath.Join(c.dir, fmt.Sprintf("%s.png", testID))
	if err := driver.SaveScreenshot(path); err != nil {
		c.log.Error("Failed to save failure screenshot", map[string]interface{}{
			logger.FieldTest: testID,
			"path":           path,
			"error":          err.Error(),
		})
		return
	}

	c.log.Info("Failure screenshot saved", map[string]interface{}{
		logger.FieldTest: testID,
		"path":           path,
	})
}
