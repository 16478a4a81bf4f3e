package resp

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func BenchmarkWriteCommand_Get(b *testing.B) {
	w := NewWriter(io.Discard)

	for b.Loop() {
		if err := w.WriteCommand("GET", "mykey"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWriteCommand_SetInt(b *testing.B) {
	w := NewWriter(io.Discard)

	for b.Loop() {
		if err := w.WriteCommand("SET", "counter", 123456789); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark WriteCommand with a 10KB value
func BenchmarkWriteCommand_LargeSet(b *testing.B) {
	data := bytes.Repeat([]byte("x"), 10*1024)
	w := NewWriter(io.Discard)

	for b.Loop() {
		if err := w.WriteCommand("SET", "mykey", data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAppendCommand(b *testing.B) {
	buf := make([]byte, 0, 128)

	for b.Loop() {
		var err error
		buf, err = AppendCommand(buf[:0], "SET", "mykey", "value")
		if err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkRead(b *testing.B, input string) {
	src := bytes.NewReader([]byte(input))
	r := bufio.NewReader(src)

	for b.Loop() {
		src.Reset([]byte(input))
		r.Reset(src)
		if _, err := ReadReply(r); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkReadReply_Status(b *testing.B) {
	benchmarkRead(b, "+OK\r\n")
}

func BenchmarkReadReply_Integer(b *testing.B) {
	benchmarkRead(b, ":1234567\r\n")
}

func BenchmarkReadReply_Bulk(b *testing.B) {
	benchmarkRead(b, "$5\r\nhello\r\n")
}

func BenchmarkReadReply_Null(b *testing.B) {
	benchmarkRead(b, "$-1\r\n")
}

func BenchmarkReadReply_Array(b *testing.B) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	items := make([]Reply, 100)
	for i := range items {
		items[i] = BulkStringReply("element")
	}
	if err := w.WriteReply(ArrayReply(items...)); err != nil {
		b.Fatal(err)
	}

	benchmarkRead(b, buf.String())
}

func BenchmarkParseLength(b *testing.B) {
	single := []byte("5")
	multi := []byte("1024")

	for b.Loop() {
		if _, err := ParseLength(single); err != nil {
			b.Fatal(err)
		}
		if _, err := ParseLength(multi); err != nil {
			b.Fatal(err)
		}
	}
}
