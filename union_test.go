// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

package avro

import (
	"math"
	"testing"
)

func testSchemaInvalid(t *testing.T, schema string, errorMessage string) {
	t.Helper()
	_, err := Parse(schema)
	ensureError(t, err, errorMessage)
}

func TestSchemaUnion(t *testing.T) {
	testSchemaInvalid(t, `[{"type":"enum","name":"e1","symbols":["alpha","bravo"]},"e1"]`, "distinct")
	testSchemaInvalid(t, `[{"type":"enum","name":"com.example.one","symbols":["red","green","blue"]},{"type":"enum","name":"one","namespace":"com.example","symbols":["dog","cat"]}]`, "duplicate type name")
	testSchemaInvalid(t, `["int","long","int"]`, "distinct")
	testSchemaInvalid(t, `[["int","string"],"long"]`, "union")
}

func TestUnionNullablePointer(t *testing.T) {
	testBinaryCodecPass(t, `["null","int"]`, nil, []byte("\x00"))

	three := int32(3)
	testBinaryEncodePass(t, `["null","int"]`, &three, []byte("\x02\x06"))

	var got interface{}
	g := MustParse(`["null","int"]`)
	if err := Unmarshal([]byte("\x02\x06"), g, &got); err != nil {
		t.Fatal(err)
	}
	if got != int32(3) {
		t.Errorf("GOT: %#v; WANT: int32(3)", got)
	}
}

func TestUnionGenericDecodeWrapsNonNullableBranches(t *testing.T) {
	schema := `["null","int","string"]`
	g := MustParse(schema)

	buf, err := Marshal(g, Union{Discriminator: "string", Value: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	var got interface{}
	if err := Unmarshal(buf, g, &got); err != nil {
		t.Fatal(err)
	}
	u, ok := got.(Union)
	if !ok {
		t.Fatalf("GOT: %T; WANT: Union", got)
	}
	if u.Discriminator != "string" || u.Value != "hi" {
		t.Errorf("GOT: %+v", u)
	}
}

func TestUnionRejectInvalidType(t *testing.T) {
	var maxUint uint64 = math.MaxUint64
	testBinaryEncodeFail(t, `["null","long"]`, &maxUint, "overflow")
}

func TestUnionWillCoerceTypeIfPossible(t *testing.T) {
	var int32val int32 = 3
	testBinaryEncodePass(t, `["null","long"]`, &int32val, []byte("\x02\x06"))
	testBinaryDecodePass(t, `["null","long"]`, int64(3), []byte("\x02\x06"))

	var float32val float32 = 3.5
	buf, err := Marshal(MustParse(`["null","double"]`), &float32val)
	if err != nil {
		t.Fatal(err)
	}
	if !bytesEqual(buf, []byte("\x02\x00\x00\x00\x00\x00\x00\f@")) {
		t.Errorf("GOT: %#v", buf)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestUnionWithArray(t *testing.T) {
	schema := `["null",{"type":"array","items":"int"}]`
	testBinaryCodecPass(t, schema, nil, []byte("\x00"))

	g := MustParse(schema)
	buf, err := Marshal(g, Union{Discriminator: "array", Value: []interface{}{}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytesEqual(buf, []byte("\x02\x00")) {
		t.Errorf("GOT: %#v", buf)
	}

	buf, err = Marshal(g, Union{Discriminator: "array", Value: []interface{}{int32(1), int32(2)}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytesEqual(buf, []byte("\x02\x04\x02\x04\x00")) {
		t.Errorf("GOT: %#v", buf)
	}
}

func TestUnionWithMap(t *testing.T) {
	schema := `["null",{"type":"map","values":"string"}]`
	testBinaryCodecPass(t, schema, nil, []byte("\x00"))

	g := MustParse(schema)
	buf, err := Marshal(g, Union{Discriminator: "map", Value: map[string]interface{}{"He": "Helium"}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytesEqual(buf, []byte("\x02\x02\x04He\x0cHelium\x00")) {
		t.Errorf("GOT: %#v", buf)
	}
}

func TestUnionMapRecordMustDisambiguateByDiscriminator(t *testing.T) {
	schema := `["null",{"type":"map","values":"double"},{"type":"record","name":"com.example.record","fields":[{"name":"field1","type":"int"},{"name":"field2","type":"float"}]}]`
	g := MustParse(schema)

	rec := map[string]interface{}{"field1": int32(3), "field2": float32(3.5)}
	buf, err := Marshal(g, Union{Discriminator: "com.example.record", Value: rec})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x04,                   // branch index 2 (record)
		0x06,                   // field1 == 3
		0x00, 0x00, 0x60, 0x40, // field2 == 3.5
	}
	if !bytesEqual(buf, want) {
		t.Errorf("GOT: %#v; WANT: %#v", buf, want)
	}

	var got interface{}
	if err := Unmarshal(buf, g, &got); err != nil {
		t.Fatal(err)
	}
	u, ok := got.(Union)
	if !ok {
		t.Fatalf("GOT: %T; WANT: Union", got)
	}
	if u.Discriminator != "com.example.record" {
		t.Errorf("GOT: %q", u.Discriminator)
	}
}

func TestUnionRecordFieldWhenNull(t *testing.T) {
	schema := `{
  "type": "record",
  "name": "r1",
  "fields": [
    {"name": "f1", "type": ["null", {"type": "array", "items": "string"}]}
  ]
}`
	type r1 struct {
		F1 *[]string `avro:"f1"`
	}

	g := MustParse(schema)
	strArray := []string{"bar"}
	buf, err := Marshal(g, r1{F1: &strArray})
	if err != nil {
		t.Fatal(err)
	}
	if !bytesEqual(buf, []byte("\x02\x02\x06bar\x00")) {
		t.Errorf("GOT: %#v", buf)
	}

	var out r1
	if err := Unmarshal(buf, g, &out); err != nil {
		t.Fatal(err)
	}
	if out.F1 == nil || (*out.F1)[0] != "bar" {
		t.Errorf("GOT: %+v", out)
	}

	buf, err = Marshal(g, r1{F1: nil})
	if err != nil {
		t.Fatal(err)
	}
	if !bytesEqual(buf, []byte("\x00")) {
		t.Errorf("GOT: %#v", buf)
	}
}
