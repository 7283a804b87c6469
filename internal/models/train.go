package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxStations    = 100
	MaxSeatNum     = 100000
	MaxTrainIDLen  = 20
	MaxStationName = 30
)

// Train is the static record of a scheduled service. Offsets are minutes
// measured from StartTime on the run date: ArriveOffsets[0] and the last
// entry of DepartOffsets are unused and kept at zero.
type Train struct {
	ID            string      `json:"train_id" db:"id"`
	Type          string      `json:"type" db:"train_type"`
	Stations      StringArray `json:"stations" db:"stations"`
	SeatCapacity  int         `json:"seat_capacity" db:"seat_capacity"`
	Prices        Int64Array  `json:"prices" db:"prices"`
	StartTime     ClockTime   `json:"start_time" db:"start_time"`
	ArriveOffsets IntArray    `json:"arrive_offsets" db:"arrive_offsets"`
	DepartOffsets IntArray    `json:"depart_offsets" db:"depart_offsets"`
	SaleStart     Date        `json:"sale_start" db:"sale_start"`
	SaleEnd       Date        `json:"sale_end" db:"sale_end"`
	Released      bool        `json:"released" db:"released"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// LegCount is the number of consecutive station pairs
func (t *Train) LegCount() int {
	return len(t.Stations) - 1
}

// OnSale reports whether the run date falls inside the sale window
func (t *Train) OnSale(runDate Date) bool {
	return runDate >= t.SaleStart && runDate <= t.SaleEnd
}

// Validate checks the internal consistency of the record
func (t *Train) Validate() error {
	if t.ID == "" || len(t.ID) > MaxTrainIDLen {
		return fmt.Errorf("train_id must be 1-%d characters", MaxTrainIDLen)
	}
	n := len(t.Stations)
	if n < 2 || n > MaxStations {
		return fmt.Errorf("a train needs between 2 and %d stations", MaxStations)
	}
	if t.SeatCapacity < 1 || t.SeatCapacity > MaxSeatNum {
		return fmt.Errorf("seat capacity must be between 1 and %d", MaxSeatNum)
	}
	seen := make(map[string]struct{}, n)
	for _, s := range t.Stations {
		if s == "" || utf8.RuneCountInString(s) > MaxStationName {
			return fmt.Errorf("station names must be 1-%d characters", MaxStationName)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("station %q appears twice on the route", s)
		}
		seen[s] = struct{}{}
	}
	if len(t.Prices) != n-1 {
		return fmt.Errorf("expected %d leg prices, got %d", n-1, len(t.Prices))
	}
	for _, p := range t.Prices {
		if p < 0 {
			return errors.New("leg prices cannot be negative")
		}
	}
	if len(t.ArriveOffsets) != n || len(t.DepartOffsets) != n {
		return fmt.Errorf("expected %d arrival and departure offsets", n)
	}
	if t.StartTime < 0 || int(t.StartTime) >= MinutesPerDay {
		return errors.New("start time must be within the day")
	}
	if t.DepartOffsets[0] != 0 {
		return errors.New("the first departure offset must be zero")
	}
	for i := 1; i < n; i++ {
		if t.ArriveOffsets[i] < t.DepartOffsets[i-1] {
			return fmt.Errorf("arrival at %q precedes departure from %q", t.Stations[i], t.Stations[i-1])
		}
		if i < n-1 && t.DepartOffsets[i] < t.ArriveOffsets[i] {
			return fmt.Errorf("departure from %q precedes arrival", t.Stations[i])
		}
	}
	if t.SaleEnd < t.SaleStart {
		return errors.New("sale window ends before it starts")
	}
	if len(t.Type) != 1 {
		return errors.New("train type must be a single character")
	}
	return nil
}

// OffsetsFromDurations converts per-leg travel times and per-station
// stopovers (intermediate stations only) into cumulative offsets.
func OffsetsFromDurations(travel, stopover []int) (arrive, depart []int, err error) {
	n := len(travel) + 1
	if len(stopover) != max(n-2, 0) {
		return nil, nil, fmt.Errorf("expected %d stopover times, got %d", max(n-2, 0), len(stopover))
	}
	arrive = make([]int, n)
	depart = make([]int, n)
	for i := 1; i < n; i++ {
		if travel[i-1] < 0 {
			return nil, nil, errors.New("travel times cannot be negative")
		}
		arrive[i] = depart[i-1] + travel[i-1]
		if i < n-1 {
			if stopover[i-1] < 0 {
				return nil, nil, errors.New("stopover times cannot be negative")
			}
			depart[i] = arrive[i] + stopover[i-1]
		}
	}
	return arrive, depart, nil
}

// AddTrainRequest is the wire form of add_train. Either travel_times and
// stopover_times or the explicit offset arrays may be supplied.
type AddTrainRequest struct {
	TrainID       string   `json:"train_id" binding:"required"`
	StationNum    int      `json:"station_num" binding:"required"`
	SeatNum       int      `json:"seat_num" binding:"required"`
	Stations      []string `json:"stations" binding:"required"`
	Prices        []int64  `json:"prices" binding:"required"`
	StartTime     string   `json:"start_time" binding:"required"`
	TravelTimes   []int    `json:"travel_times,omitempty"`
	StopoverTimes []int    `json:"stopover_times,omitempty"`
	ArriveOffsets []int    `json:"arrive_offsets,omitempty"`
	DepartOffsets []int    `json:"depart_offsets,omitempty"`
	SaleDate      []string `json:"sale_date" binding:"required"`
	Type          string   `json:"type" binding:"required"`
}

// ToTrain validates the request and builds the catalog record
func (r *AddTrainRequest) ToTrain() (*Train, error) {
	if r.StationNum != len(r.Stations) {
		return nil, fmt.Errorf("station_num is %d but %d stations were listed", r.StationNum, len(r.Stations))
	}
	start, err := ParseClock(r.StartTime)
	if err != nil {
		return nil, err
	}
	if len(r.SaleDate) != 2 {
		return nil, errors.New("sale_date must hold a start and an end date")
	}
	saleStart, err := ParseDate(r.SaleDate[0])
	if err != nil {
		return nil, err
	}
	saleEnd, err := ParseDate(r.SaleDate[1])
	if err != nil {
		return nil, err
	}

	arrive, depart := r.ArriveOffsets, r.DepartOffsets
	if len(arrive) == 0 && len(depart) == 0 {
		if len(r.TravelTimes) != len(r.Stations)-1 {
			return nil, fmt.Errorf("expected %d travel times, got %d", len(r.Stations)-1, len(r.TravelTimes))
		}
		arrive, depart, err = OffsetsFromDurations(r.TravelTimes, r.StopoverTimes)
		if err != nil {
			return nil, err
		}
	}

	stations := make([]string, len(r.Stations))
	for i, s := range r.Stations {
		stations[i] = strings.TrimSpace(s)
	}
	t := &Train{
		ID:            strings.TrimSpace(r.TrainID),
		Type:          r.Type,
		Stations:      stations,
		SeatCapacity:  r.SeatNum,
		Prices:        append(Int64Array(nil), r.Prices...),
		StartTime:     start,
		ArriveOffsets: append(IntArray(nil), arrive...),
		DepartOffsets: append(IntArray(nil), depart...),
		SaleStart:     saleStart,
		SaleEnd:       saleEnd,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// TrainStop is one row of a train's timetable for a given run date
type TrainStop struct {
	Station   string     `json:"station"`
	Arrival   *time.Time `json:"arrival,omitempty"`
	Departure *time.Time `json:"departure,omitempty"`
	Price     int64      `json:"price"`
	Seats     *int       `json:"seats,omitempty"`
}

// TrainSchedule is the query_train result
type TrainSchedule struct {
	TrainID  string      `json:"train_id"`
	Type     string      `json:"type"`
	RunDate  Date        `json:"run_date"`
	Released bool        `json:"released"`
	Stops    []TrainStop `json:"stops"`
}
