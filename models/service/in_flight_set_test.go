package service_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/APTrust/preservation-fixity/models/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInFlightSet(t *testing.T) {
	set := service.NewInFlightSet()
	require.NotNil(t, set)
	assert.Equal(t, 0, set.Len())
}

func TestInFlightAddAndContains(t *testing.T) {
	set := service.NewInFlightSet()
	assert.True(t, set.Add("one"))
	assert.True(t, set.Add("two"))
	assert.False(t, set.Add("one"))
	assert.True(t, set.Contains("one"))
	assert.True(t, set.Contains("two"))
	assert.False(t, set.Contains("three"))
	assert.Equal(t, []string{"one", "two"}, set.Items())
}

func TestInFlightDel(t *testing.T) {
	set := service.NewInFlightSet()
	set.Add("one")
	set.Add("two")
	set.Del("one")
	set.Del("does-not-exist")
	assert.False(t, set.Contains("one"))
	assert.True(t, set.Contains("two"))
	assert.Equal(t, 1, set.Len())

	// Once deleted, an item can be claimed again.
	assert.True(t, set.Add("one"))
}

func TestInFlightClear(t *testing.T) {
	set := service.NewInFlightSet()
	set.Add("one")
	set.Add("two")
	set.Clear()
	assert.Equal(t, 0, set.Len())
	assert.False(t, set.Contains("one"))
}

func TestInFlightConcurrentAdd(t *testing.T) {
	set := service.NewInFlightSet()
	var wg sync.WaitGroup
	claims := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claims <- set.Add(fmt.Sprintf("item-%d", i%10))
		}(i)
	}
	wg.Wait()
	close(claims)
	won := 0
	for claimed := range claims {
		if claimed {
			won++
		}
	}
	assert.Equal(t, 10, won)
	assert.Equal(t, 10, set.Len())
}
