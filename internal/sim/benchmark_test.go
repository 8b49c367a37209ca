package sim

import (
	"fmt"
	"testing"

	"github.com/KilimcininKorOglu/miniraft/internal/kv"
)

// BenchmarkClusterStep benchmarks one simulated step of a loaded five-node
// cluster, including the safety checks.
func BenchmarkClusterStep(b *testing.B) {
	c := New(Config{Size: 5, Seed: 1})
	if !c.RunUntil(HasLeader, 200) {
		b.Fatal("no leader elected")
	}
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if i%10 == 0 {
			c.Propose(kv.Put(fmt.Sprintf("k%d", i%100), "v"))
		}
		c.Step(DefaultStepInterval)
		if err := c.Check(); err != nil {
			b.Fatal(err)
		}
	}
}
