package controlconn

import (
	"math/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func hostsN(n int) []*Host {
	hosts := make([]*Host, n)
	for i := 0; i < n; i++ {
		hosts[i] = NewHost(net.IPv4(10, 0, 0, byte(i+1)), 9042)
	}
	return hosts
}

// TestStartupQueryPlan_CoversEveryHostExactlyOnce is property P1.
func TestStartupQueryPlan_CoversEveryHostExactlyOnce(t *testing.T) {
	for n := 1; n <= 12; n++ {
		hosts := hostsN(n)
		plan := NewStartupQueryPlan(hosts, rand.New(rand.NewSource(int64(n))))

		seen := make(map[*Host]bool, n)
		count := 0
		for {
			h, ok := plan.Next()
			if !ok {
				break
			}
			require.False(t, seen[h], "host yielded twice for n=%d", n)
			seen[h] = true
			count++
		}
		require.Equal(t, n, count)
		require.Len(t, seen, n)
	}
}

func TestStartupQueryPlan_Empty(t *testing.T) {
	plan := NewStartupQueryPlan(nil, nil)
	_, ok := plan.Next()
	require.False(t, ok)
}

func TestStartupQueryPlan_Remaining(t *testing.T) {
	hosts := hostsN(3)
	plan := NewStartupQueryPlan(hosts, rand.New(rand.NewSource(1)))
	require.Equal(t, 3, plan.Remaining())
	plan.Next()
	require.Equal(t, 2, plan.Remaining())
}
