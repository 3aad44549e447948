package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenVocabularies(t *testing.T) {
	for _, s := range []string{"ya", "Y", " yes ", "iya", "OK", "oke!"} {
		assert.True(t, isYes(s), s)
	}
	for _, s := range []string{"tidak", "t", "No", "n", "gak", "batal"} {
		assert.True(t, isNo(s), s)
	}
	assert.True(t, isCancel("Batal"))
	assert.True(t, isCancel("cancel"))
	assert.False(t, isCancel("tidak"))
	assert.True(t, isDone("selesai"))
	assert.True(t, isDone("Sudah."))
	assert.False(t, isYes("yaa"))
}

func TestChoice(t *testing.T) {
	i, ok := choice("3", 3)
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = choice("0", 3)
	assert.False(t, ok)
	_, ok = choice("4", 3)
	assert.False(t, ok)
	_, ok = choice("dua", 3)
	assert.False(t, ok)
}

func TestCommandAndID(t *testing.T) {
	verb, arg := command("  Proses   #42 ")
	assert.Equal(t, "proses", verb)
	assert.Equal(t, "#42", arg)

	id, ok := parseID(arg)
	assert.True(t, ok)
	assert.EqualValues(t, 42, id)

	_, ok = parseID("-1")
	assert.False(t, ok)
	verb, _ = command("")
	assert.Empty(t, verb)
}

func TestFreeText(t *testing.T) {
	s, ok := freeText("  ganti  ", 5)
	assert.True(t, ok)
	assert.Equal(t, "ganti", s)
	_, ok = freeText("abcd", 5)
	assert.False(t, ok)
}

func TestRupiah(t *testing.T) {
	assert.Equal(t, "Rp0", rupiah(0))
	assert.Equal(t, "Rp999", rupiah(999))
	assert.Equal(t, "Rp72.000", rupiah(72000))
	assert.Equal(t, "Rp1.250.000", rupiah(1250000))
}

func TestAmount(t *testing.T) {
	for in, want := range map[string]float64{"150000": 150000, "150.000": 150000, "Rp 166.500": 166500, "rp72,000": 72000} {
		got, ok := amount(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "0", "-5", "seratus"} {
		_, ok := amount(in)
		assert.False(t, ok, in)
	}
}
