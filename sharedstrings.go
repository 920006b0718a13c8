package excelts

// SharedStrings is the workbook-wide string table. On the write side it
// interns values so each distinct string is stored once; on the read side it
// holds the table as parsed, duplicates included, so indexes resolve exactly
// as recorded.
type SharedStrings struct {
	list  []string
	index map[string]int
	refs  int
}

// NewSharedStrings returns an empty table.
func NewSharedStrings() *SharedStrings {
	return &SharedStrings{index: make(map[string]int)}
}

// Intern adds s if it is not present and returns its index. Every call
// counts one reference toward the table's total.
func (ss *SharedStrings) Intern(s string) int {
	ss.refs++
	if i, ok := ss.index[s]; ok {
		return i
	}
	i := len(ss.list)
	ss.list = append(ss.list, s)
	ss.index[s] = i
	return i
}

// Value resolves an index to its string.
func (ss *SharedStrings) Value(i int) (string, bool) {
	if i < 0 || i >= len(ss.list) {
		return "", false
	}
	return ss.list[i], true
}

// Len returns the number of distinct entries.
func (ss *SharedStrings) Len() int {
	return len(ss.list)
}

// Refs returns the total number of references interned, the table's count
// attribute.
func (ss *SharedStrings) Refs() int {
	if ss.refs == 0 {
		return len(ss.list)
	}
	return ss.refs
}

// add appends an entry as parsed, keeping duplicates in place.
func (ss *SharedStrings) add(s string) {
	if _, ok := ss.index[s]; !ok {
		ss.index[s] = len(ss.list)
	}
	ss.list = append(ss.list, s)
}
