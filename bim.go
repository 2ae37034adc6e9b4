package variation

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/carbocation/genomisc"
	"github.com/carbocation/pfx"
)

// BIMRows describes the sites of a chunk as PLINK .bim rows. Allele1 is the
// reference allele and Allele2 the first alternate; a site with no alternate
// gets "0", PLINK's missing allele code. Sites without an ID are named
// chrom:pos.
func BIMRows(c *Arrays) ([]genomisc.BIMRow, error) {
	fields := make(map[string]Array)
	for _, p := range []string{ChromField, PosField, IDField, RefField, AltField} {
		arr, err := c.Get(p)
		if err != nil {
			return nil, pfx.Err(err)
		}
		fields[p] = arr
	}
	chrom, err := AsString(fields[ChromField])
	if err != nil {
		return nil, pfx.Err(err)
	}
	pos, err := AsInt(fields[PosField])
	if err != nil {
		return nil, pfx.Err(err)
	}
	id, err := AsString(fields[IDField])
	if err != nil {
		return nil, pfx.Err(err)
	}
	ref, err := AsString(fields[RefField])
	if err != nil {
		return nil, pfx.Err(err)
	}
	alt, err := AsString(fields[AltField])
	if err != nil {
		return nil, pfx.Err(err)
	}

	rows := make([]genomisc.BIMRow, 0, c.NumVariations())
	for r := 0; r < c.NumVariations(); r++ {
		row := genomisc.BIMRow{
			Chromosome: chrom.At(r),
			Coordinate: uint32(pos.At(r)),
			VariantID:  id.At(r),
			Allele1:    ref.At(r),
			Allele2:    "0",
		}
		if row.VariantID == MissingString {
			row.VariantID = fmt.Sprintf("%s:%d", row.Chromosome, row.Coordinate)
		}
		if a := alt.Row(r); len(a) > 0 && a[0] != MissingString {
			row.Allele2 = a[0]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteBIM writes every site of s to w in PLINK .bim format. The genetic
// distance column is always 0.
func WriteBIM(w io.Writer, s Store) error {
	bw := bufio.NewWriter(w)
	cr := s.IterateChunks(WithKeptFields(ChromField, PosField, IDField, RefField, AltField))
	cols := make([]string, 6)
	for {
		c := cr.Read()
		if c == nil {
			break
		}
		rows, err := BIMRows(c)
		if err != nil {
			return pfx.Err(err)
		}
		for _, row := range rows {
			cols[genomisc.Chromosome] = row.Chromosome
			cols[genomisc.VariantID] = row.VariantID
			cols[genomisc.Morgans] = "0"
			cols[genomisc.Coordinate] = strconv.FormatUint(uint64(row.Coordinate), 10)
			cols[genomisc.Allele1] = row.Allele1
			cols[genomisc.Allele2] = row.Allele2
			if _, err := bw.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
				return pfx.Err(err)
			}
		}
	}
	if err := cr.Error(); err != nil {
		return pfx.Err(err)
	}
	if err := bw.Flush(); err != nil {
		return pfx.Err(err)
	}
	return nil
}
