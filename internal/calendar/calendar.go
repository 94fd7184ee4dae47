// Package calendar answers "is date X a configured public holiday",
// the input needed to classify a service day as Weekday or
// SaturdayHoliday (spec.md §4.3). Grounded on
// OpenTransitTools-transitcast's aggregator.transitHolidayCalendar, which
// wraps the same github.com/rickar/cal/v2 library for the same purpose
// with a hardcoded US holiday list; here the list is loaded from JSON
// since the network operates in Japan, not under the `us` subpackage.
package calendar

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rickar/cal/v2"

	"trainpulse/internal/domain"
)

// HolidayEntry is one fixed-date public holiday, as stored in the JSON
// file named by the HOLIDAYS_FILE environment variable.
type HolidayEntry struct {
	Name  string `json:"name"`
	Month int    `json:"month"` // 1-12
	Day   int    `json:"day"`
}

// Calendar answers whether a given date is a configured public holiday.
type Calendar struct {
	business *cal.BusinessCalendar
}

// defaultHolidays is a small built-in set of Japanese national holidays used when
// no HOLIDAYS_FILE is configured, so the service is usable out of the box.
var defaultHolidays = []HolidayEntry{
	{Name: "New Year's Day", Month: 1, Day: 1},
	{Name: "Coming of Age Day", Month: 1, Day: 13},
	{Name: "National Foundation Day", Month: 2, Day: 11},
	{Name: "Emperor's Birthday", Month: 2, Day: 23},
	{Name: "Vernal Equinox Day", Month: 3, Day: 20},
	{Name: "Showa Day", Month: 4, Day: 29},
	{Name: "Constitution Memorial Day", Month: 5, Day: 3},
	{Name: "Greenery Day", Month: 5, Day: 4},
	{Name: "Children's Day", Month: 5, Day: 5},
	{Name: "Marine Day", Month: 7, Day: 21},
	{Name: "Mountain Day", Month: 8, Day: 11},
	{Name: "Respect for the Aged Day", Month: 9, Day: 15},
	{Name: "Autumnal Equinox Day", Month: 9, Day: 23},
	{Name: "Sports Day", Month: 10, Day: 13},
	{Name: "Culture Day", Month: 11, Day: 3},
	{Name: "Labor Thanksgiving Day", Month: 11, Day: 23},
}

// New builds a Calendar from a JSON holidays file, or from the built-in
// default list when path is empty.
func New(path string) (*Calendar, error) {
	entries := defaultHolidays
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read holidays file: %w", err)
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse holidays file: %w", err)
		}
	}

	business := cal.NewBusinessCalendar()
	for _, e := range entries {
		h := &cal.Holiday{
			Name:  e.Name,
			Month: time.Month(e.Month),
			Day:   e.Day,
			Func:  cal.CalcDayOfMonth,
		}
		business.AddHoliday(h)
	}

	return &Calendar{business: business}, nil
}

// IsHoliday reports whether at falls on a configured public holiday.
func (c *Calendar) IsHoliday(at time.Time) bool {
	if c == nil || c.business == nil {
		return false
	}
	_, observed, _ := c.business.IsHoliday(at)
	return observed
}

// ServiceType classifies the service day covering at into the operating
// calendar used for segment filtering (spec.md §4.3): Monday-Friday is
// Weekday; Saturday, Sunday, and configured public holidays are
// SaturdayHoliday.
func (c *Calendar) ServiceType(at time.Time) domain.ServiceType {
	// Before 04:00 the instant still belongs to the previous day's service.
	day := at
	if at.Hour() < 4 {
		day = at.AddDate(0, 0, -1)
	}
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return domain.ServiceSaturdayHoliday
	}
	if c.IsHoliday(day) {
		return domain.ServiceSaturdayHoliday
	}
	return domain.ServiceWeekday
}
