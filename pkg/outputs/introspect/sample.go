package introspect

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/damarr/helmsman/pkg/outputs"
	"github.com/damarr/helmsman/pkg/tools"
)

func sampleTool(store outputs.Store) tools.Definition {
	return tools.Definition{
		Name:        tools.OutputAccessPrefix + "sample",
		Description: "Extract a sample of items from arrays in stored output. Supports random, systematic, and edge sampling strategies.",
		Parameters: []tools.Parameter{
			{Name: "id", Type: "string", Description: "The tool output reference ID", Required: true},
			{Name: "path", Type: "string", Description: "JSONPath to the array to sample from", Required: true},
			{Name: "size", Type: "integer", Description: "Number of items to sample", Required: true},
			{Name: "strategy", Type: "string", Description: "Sampling strategy: random, first, last, or systematic", Default: "random"},
			{Name: "seed", Type: "integer", Description: "Random seed for reproducible sampling"},
			{Name: "stride", Type: "integer", Description: "Step size for systematic sampling"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			record, _, err := loadRecord(store, args)
			if err != nil {
				return tools.Fail(err.Error()), nil
			}

			pathStr := stringArg(args, "path")
			if pathStr == "" {
				return tools.Fail("missing 'path'"), nil
			}
			size, ok := intArg(args, "size")
			if !ok {
				return tools.Fail("missing 'size'"), nil
			}
			size = clampInt(size, 1, 1000)

			matches, err := queryPath(record.Output, pathStr)
			if err != nil {
				return tools.Fail(err.Error()), nil
			}

			var arr []interface{}
			for _, match := range matches {
				if candidate, isArray := match.([]interface{}); isArray {
					arr = candidate
					break
				}
			}
			if arr == nil {
				return tools.Fail(fmt.Sprintf("path '%s' did not match an array", pathStr)), nil
			}

			totalItems := len(arr)
			actualSize := size
			if actualSize > totalItems {
				actualSize = totalItems
			}

			var indices []int
			switch stringArgDefault(args, "strategy", "random") {
			case "first":
				for i := 0; i < actualSize; i++ {
					indices = append(indices, i)
				}
			case "last":
				start := totalItems - actualSize
				for i := start; i < totalItems; i++ {
					indices = append(indices, i)
				}
			case "systematic":
				stride := intArgDefault(args, "stride", 1)
				if stride < 1 {
					stride = 1
				}
				for i := 0; len(indices) < actualSize && i < totalItems; i += stride {
					indices = append(indices, i)
				}
			default:
				pool := make([]int, totalItems)
				for i := range pool {
					pool[i] = i
				}
				rng := rand.New(rand.NewSource(seedFor(args)))
				rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
				indices = pool[:actualSize]
				sort.Ints(indices)
			}

			sample := make([]interface{}, 0, len(indices))
			for _, idx := range indices {
				sample = append(sample, arr[idx])
			}

			return tools.Ok(map[string]interface{}{
				"sample":      sample,
				"total_items": totalItems,
				"sample_size": len(indices),
				"indices":     indices,
			}), nil
		},
	}
}

func seedFor(args map[string]interface{}) int64 {
	if seed, ok := intArg(args, "seed"); ok {
		return int64(seed)
	}
	return rand.Int63()
}
