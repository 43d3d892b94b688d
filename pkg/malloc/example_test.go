package malloc_test

import (
	"fmt"

	"github.com/joshuapare/tcheap/heap"
	"github.com/joshuapare/tcheap/pkg/malloc"
)

func Example() {
	p := malloc.Calloc(4, 8)
	copy(heap.Bytes(p, 5), "hello")

	p = malloc.Realloc(p, 4096)
	fmt.Println(string(heap.Bytes(p, 5)))
	fmt.Println(malloc.UsableSize(p))

	fmt.Println(malloc.Free(p))
	fmt.Println(malloc.Free(p))
	// Output:
	// hello
	// 4096
	// 0
	// -1
}
