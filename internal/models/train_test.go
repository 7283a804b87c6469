package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTrainRequest() AddTrainRequest {
	return AddTrainRequest{
		TrainID:       "T1",
		StationNum:    3,
		SeatNum:       10,
		Stations:      []string{"A", "B", "C"},
		Prices:        []int64{10, 20},
		StartTime:     "08:00",
		TravelTimes:   []int{60, 90},
		StopoverTimes: []int{5},
		SaleDate:      []string{"06-01", "06-30"},
		Type:          "G",
	}
}

func TestOffsetsFromDurations(t *testing.T) {
	arrive, depart, err := OffsetsFromDurations([]int{60, 90, 30}, []int{5, 10})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 60, 155, 195}, arrive)
	assert.Equal(t, []int{0, 65, 165, 0}, depart)

	_, _, err = OffsetsFromDurations([]int{60, 90}, nil)
	assert.Error(t, err)

	_, _, err = OffsetsFromDurations([]int{60, -1}, []int{5})
	assert.Error(t, err)

	arrive, depart, err = OffsetsFromDurations([]int{60, 0}, []int{0})
	require.NoError(t, err, "offsets only need to be non-decreasing")
	assert.Equal(t, []int{0, 60, 60}, arrive)
	assert.Equal(t, []int{0, 60, 0}, depart)
}

func TestAddTrainRequest_ZeroLengthLegs(t *testing.T) {
	req := validTrainRequest()
	req.ArriveOffsets = []int{0, 60, 60}
	req.DepartOffsets = []int{0, 60, 0}

	train, err := req.ToTrain()
	require.NoError(t, err)
	assert.Equal(t, IntArray{0, 60, 60}, train.ArriveOffsets)
}

func TestAddTrainRequest_ToTrain(t *testing.T) {
	req := validTrainRequest()
	train, err := req.ToTrain()
	require.NoError(t, err)

	assert.Equal(t, "T1", train.ID)
	assert.Equal(t, 2, train.LegCount())
	assert.Equal(t, ClockTime(480), train.StartTime)
	assert.Equal(t, IntArray{0, 60, 155}, train.ArriveOffsets)
	assert.Equal(t, IntArray{0, 65, 0}, train.DepartOffsets)
	assert.Equal(t, "2021-06-01", train.SaleStart.String())
	assert.True(t, train.OnSale(MustParseDate("06-30")))
	assert.False(t, train.OnSale(MustParseDate("07-01")))
}

func TestAddTrainRequest_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(r *AddTrainRequest)
	}{
		{"Station count mismatch", func(r *AddTrainRequest) { r.StationNum = 4 }},
		{"Duplicate station", func(r *AddTrainRequest) { r.Stations = []string{"A", "B", "A"} }},
		{"Missing price", func(r *AddTrainRequest) { r.Prices = []int64{10} }},
		{"Negative price", func(r *AddTrainRequest) { r.Prices = []int64{10, -1} }},
		{"Zero seats", func(r *AddTrainRequest) { r.SeatNum = 0 }},
		{"Bad start time", func(r *AddTrainRequest) { r.StartTime = "25:00" }},
		{"Inverted sale window", func(r *AddTrainRequest) { r.SaleDate = []string{"06-30", "06-01"} }},
		{"Single sale date", func(r *AddTrainRequest) { r.SaleDate = []string{"06-30"} }},
		{"Long type", func(r *AddTrainRequest) { r.Type = "GD" }},
		{"Offsets out of order", func(r *AddTrainRequest) {
			r.ArriveOffsets = []int{0, 60, 50}
			r.DepartOffsets = []int{0, 65, 0}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validTrainRequest()
			tc.mutate(&req)
			_, err := req.ToTrain()
			assert.Error(t, err)
		})
	}
}

func TestParseSortKey(t *testing.T) {
	for input, want := range map[string]SortKey{
		"":         SortByTime,
		"time":     SortByTime,
		"duration": SortByTime,
		"cost":     SortByCost,
		"PRICE":    SortByCost,
	} {
		got, err := ParseSortKey(input)
		require.NoError(t, err)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseSortKey("seats")
	assert.Error(t, err)
}

func TestNewUserRequest_Validate(t *testing.T) {
	req := NewUserRequest{Username: " alice ", Password: "pw", Name: "Alice", Mail: "a@example.com", Privilege: 10}
	require.NoError(t, req.Validate())
	assert.Equal(t, "alice", req.Username)

	req.Privilege = 11
	assert.Error(t, req.Validate())

	req.Privilege = 3
	req.Mail = "nope"
	assert.Error(t, req.Validate())
}
