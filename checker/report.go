package checker

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// WriteScanReport populates a json object with the verdict, statistics and
// corrupt ranges of the most recent scan, for inclusion in crash reports.
func (c *Checker) WriteScanReport(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	obj.Name("HeapCorrupt").Bool(len(c.ranges) > 0)

	statsObj := obj.Name("Statistics").Object()
	statsObj.Name("BlocksScanned").Int(c.stats.BlockCount)
	statsObj.Name("QuarantinedBlocks").Int(c.stats.QuarantinedBlockCount)
	statsObj.Name("CorruptBlocks").Int(c.stats.CorruptBlockCount)
	statsObj.Name("BytesScanned").Int(c.stats.BytesScanned)
	statsObj.End()

	rangesArr := obj.Name("CorruptRanges").Array()
	defer rangesArr.End()

	for _, r := range c.ranges {
		rangeObj := rangesArr.Object()
		rangeObj.Name("Address").Int(r.Address)
		rangeObj.Name("Length").Int(r.Length)
		rangeObj.Name("BlockCount").Int(r.BlockCount)
		rangeObj.End()
	}
}
