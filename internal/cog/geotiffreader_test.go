package cog

import "testing"

func TestParseStatisticsFromGDALMetadata(t *testing.T) {
	raw := `<GDALMetadata>
  <Item name="STATISTICS_MINIMUM" sample="0">1.5</Item>
  <Item name="STATISTICS_MAXIMUM" sample="0">9</Item>
  <Item name="STATISTICS_MEAN" sample="0">4.25</Item>
  <Item name="STATISTICS_STDDEV" sample="0">2.125</Item>
  <Item name="STATISTICS_VALID_PERCENT" sample="0">87.5</Item>
</GDALMetadata>`
	stats := parseStatistics(raw)
	if stats == nil {
		t.Fatal("expected statistics to parse")
	}
	if stats.Min != 1.5 || stats.Max != 9 || stats.Mean != 4.25 || stats.StdDev != 2.125 || stats.ValidPercent != 87.5 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestParseStatisticsAbsentOrMalformed(t *testing.T) {
	if parseStatistics("") != nil {
		t.Error("empty metadata must yield no statistics")
	}
	if parseStatistics("<GDALMetadata><Item name=\"AREA_OR_POINT\">Area</Item></GDALMetadata>") != nil {
		t.Error("metadata without statistics items must yield nil")
	}
	if parseStatistics("not xml at all") != nil {
		t.Error("malformed XML must yield nil, not an error")
	}
}

func TestParseScaleOffset(t *testing.T) {
	raw := `<GDALMetadata>
  <Item name="SCALE" sample="0" role="scale">0.1</Item>
  <Item name="OFFSET" sample="0" role="offset">-273.15</Item>
</GDALMetadata>`
	scale, offset := parseScaleOffset(raw)
	if scale == nil || *scale != 0.1 {
		t.Errorf("scale = %v, want 0.1", scale)
	}
	if offset == nil || *offset != -273.15 {
		t.Errorf("offset = %v, want -273.15", offset)
	}

	scale, offset = parseScaleOffset("")
	if scale != nil || offset != nil {
		t.Error("absent metadata must yield nil scale/offset")
	}
}

func TestParseGDALNoDataValues(t *testing.T) {
	if v, ok := parseGDALNoData(" -9999 "); !ok || v != -9999 {
		t.Errorf("parseGDALNoData(-9999) = (%v, %v)", v, ok)
	}
	if _, ok := parseGDALNoData(""); ok {
		t.Error("empty nodata string must not parse")
	}
	if _, ok := parseGDALNoData("abc"); ok {
		t.Error("non-numeric nodata string must not parse")
	}
}
