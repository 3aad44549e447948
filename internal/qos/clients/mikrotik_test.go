package clients

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMaxLimit(t *testing.T) {
	cases := []struct {
		in       string
		up, down int
	}{
		{"1024k/2048k", 1024, 2048},
		{"10M/20M", 10240, 20480},
		{"10000000/20000000", 10000, 20000},
		{"garbage", 0, 0},
	}
	for _, c := range cases {
		up, down := ParseMaxLimit(c.in)
		assert.Equal(t, c.up, up, c.in)
		assert.Equal(t, c.down, down, c.in)
	}
}

func TestValidate(t *testing.T) {
	assert.Error(t, validate(nil))
	assert.Error(t, validate(&QueueConfig{}))
	assert.Error(t, validate(&QueueConfig{Name: "q", UpRate: -1}))
	assert.NoError(t, validate(&QueueConfig{Name: "q", UpRate: 1024, DownRate: 2048}))
	assert.Equal(t, "1024k/2048k", maxLimit(&QueueConfig{UpRate: 1024, DownRate: 2048}))
	assert.Equal(t, "<pppoe-budi>", PPPoETarget("budi"))
}
