// Command gen writes testdata/sales.parquet and testdata/sales.avro with
// the same rows as testdata/sales.csv.
package main

import (
	"log"
	"os"

	"github.com/linkedin/goavro/v2"
	parquet "github.com/parquet-go/parquet-go"
)

type Sale struct {
	ID        int64   `parquet:"id"`
	Region    string  `parquet:"region"`
	Product   string  `parquet:"product"`
	Units     *int64  `parquet:"units,optional"`
	UnitPrice float64 `parquet:"unit price"`
	Paid      *bool   `parquet:"paid,optional"`
}

const saleSchema = `{
  "type": "record",
  "name": "Sale",
  "fields": [
    {"name": "id", "type": "long"},
    {"name": "region", "type": "string"},
    {"name": "product", "type": "string"},
    {"name": "units", "type": ["null", "long"]},
    {"name": "unit_price", "type": "double"},
    {"name": "paid", "type": ["null", "boolean"]}
  ]
}`

func ptr[T any](v T) *T { return &v }

var sales = []Sale{
	{1, "north", "widget", ptr[int64](4), 2.5, ptr(true)},
	{2, "south", "gadget", ptr[int64](1), 10, ptr(false)},
	{3, "north", "gadget", ptr[int64](2), 10, ptr(true)},
	{4, "east", "widget", nil, 2.5, ptr(true)},
	{5, "south", "gizmo", ptr[int64](7), 1.25, nil},
	{6, "north", "widget", ptr[int64](3), 2.5, ptr(false)},
}

func main() {
	if err := writeParquet("testdata/sales.parquet"); err != nil {
		log.Fatal(err)
	}
	if err := writeAvro("testdata/sales.avro"); err != nil {
		log.Fatal(err)
	}
}

func writeParquet(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := parquet.NewGenericWriter[Sale](f)
	if _, err := w.Write(sales); err != nil {
		return err
	}
	return w.Close()
}

func writeAvro(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: f, Schema: saleSchema, CompressionName: goavro.CompressionSnappyLabel})
	if err != nil {
		return err
	}
	records := make([]any, len(sales))
	for i, s := range sales {
		rec := map[string]any{
			"id":         s.ID,
			"region":     s.Region,
			"product":    s.Product,
			"unit_price": s.UnitPrice,
			"units":      nil,
			"paid":       nil,
		}
		if s.Units != nil {
			rec["units"] = goavro.Union("long", *s.Units)
		}
		if s.Paid != nil {
			rec["paid"] = goavro.Union("boolean", *s.Paid)
		}
		records[i] = rec
	}
	return w.Append(records)
}
