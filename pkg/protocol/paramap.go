package protocol

// ParamMap is a one-byte-keyed map of Values — the relay protocol's
// payload shape. Its size is a single unsigned byte on the wire, so it
// holds at most 255 entries. Iteration order is unspecified.
type ParamMap map[byte]Value

// NewParamMap returns an empty ParamMap.
func NewParamMap() ParamMap {
	return make(ParamMap)
}

// Set stores a value under key, overwriting any existing entry.
func (m ParamMap) Set(key byte, v Value) {
	m[key] = v
}

// Get returns the value under key and whether it was present.
func (m ParamMap) Get(key byte) (Value, bool) {
	v, ok := m[key]
	return v, ok
}

// GetString returns the string under key, or "" and false if absent or
// not a string.
func (m ParamMap) GetString(key byte) (string, bool) {
	v, ok := m[key]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// GetStringArray returns the string array under key, or nil and false if
// absent or not a string array.
func (m ParamMap) GetStringArray(key byte) ([]string, bool) {
	v, ok := m[key]
	if !ok || v.Kind != KindStringArray {
		return nil, false
	}
	return v.Strs, true
}

// GetInt returns the int under key, or 0 and false if absent or not an
// int.
func (m ParamMap) GetInt(key byte) (int32, bool) {
	v, ok := m[key]
	if !ok || v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

// writeParamTable serializes the map as [count: u8][(key, type, value)*].
func writeParamTable(buf *Buffer, params ParamMap) {
	if len(params) == 0 {
		buf.WriteByte(0)
		return
	}
	if len(params) > 255 {
		panic("protocol: param map exceeds 255 entries")
	}
	buf.WriteByte(byte(len(params)))
	for key, v := range params {
		buf.WriteByte(key)
		WriteValue(buf, v)
	}
}

// readParamTable decodes a [count: u8][(key, type, value)*] table.
func readParamTable(buf *Buffer) (ParamMap, error) {
	count, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	params := make(ParamMap, count)
	for i := 0; i < int(count); i++ {
		key, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		wireType, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		v, err := ReadValue(buf, wireType)
		if err != nil {
			return nil, err
		}
		params.Set(key, v)
	}
	return params, nil
}
