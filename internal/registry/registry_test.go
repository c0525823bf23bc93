package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blemon/internal/registry"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "canonical form passes through",
			input: "AA:BB:CC:DD:EE:FF",
			want:  "AA:BB:CC:DD:EE:FF",
		},
		{
			name:  "lowercase is canonicalized",
			input: "aa:bb:cc:dd:ee:ff",
			want:  "AA:BB:CC:DD:EE:FF",
		},
		{
			name:  "hyphen notation accepted",
			input: "aa-bb-cc-dd-ee-ff",
			want:  "AA:BB:CC:DD:EE:FF",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  AA:BB:CC:DD:EE:FF ",
			want:  "AA:BB:CC:DD:EE:FF",
		},
		{
			name:    "garbage rejected",
			input:   "not-a-mac",
			wantErr: true,
		},
		{
			name:    "8-byte EUI-64 rejected",
			input:   "00:11:22:33:44:55:66:77",
			wantErr: true,
		},
		{
			name:    "empty rejected",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.NormalizeAddress(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		devices []registry.DeviceConfig
		wantErr string
	}{
		{
			name: "valid devices accepted",
			devices: []registry.DeviceConfig{
				{Address: "AA:BB:CC:DD:EE:FF", Name: "kitchen-sensor"},
				{Address: "11:22:33:44:55:66", Name: "door-beacon"},
			},
		},
		{
			name:    "empty list accepted",
			devices: nil,
		},
		{
			name: "invalid address rejected",
			devices: []registry.DeviceConfig{
				{Address: "bogus", Name: "kitchen-sensor"},
			},
			wantErr: "invalid hardware address",
		},
		{
			name: "empty name rejected",
			devices: []registry.DeviceConfig{
				{Address: "AA:BB:CC:DD:EE:FF", Name: ""},
			},
			wantErr: "name must not be empty",
		},
		{
			name: "duplicate address rejected",
			devices: []registry.DeviceConfig{
				{Address: "AA:BB:CC:DD:EE:FF", Name: "kitchen-sensor"},
				{Address: "aa:bb:cc:dd:ee:ff", Name: "same-device-again"},
			},
			wantErr: "duplicate address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := registry.New(tt.devices)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.devices), reg.Len())
		})
	}
}

func TestResolve(t *testing.T) {
	reg, err := registry.New([]registry.DeviceConfig{
		{Address: "AA:BB:CC:DD:EE:FF", Name: "kitchen-sensor", Timeout: 45 * time.Second},
	})
	require.NoError(t, err)

	t.Run("resolves any accepted notation", func(t *testing.T) {
		for _, addr := range []string{"AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff", "aa-bb-cc-dd-ee-ff"} {
			dc, ok := reg.Resolve(addr)
			require.True(t, ok, "address %s", addr)
			assert.Equal(t, "kitchen-sensor", dc.Name)
			assert.Equal(t, 45*time.Second, dc.Timeout)
		}
	})

	t.Run("unknown address misses", func(t *testing.T) {
		_, ok := reg.Resolve("00:00:00:00:00:01")
		assert.False(t, ok)
	})

	t.Run("malformed address misses without error", func(t *testing.T) {
		_, ok := reg.Resolve("junk")
		assert.False(t, ok)
	})
}

func TestAllPreservesConfigurationOrder(t *testing.T) {
	reg, err := registry.New([]registry.DeviceConfig{
		{Address: "33:33:33:33:33:33", Name: "third"},
		{Address: "11:11:11:11:11:11", Name: "first"},
		{Address: "22:22:22:22:22:22", Name: "second"},
	})
	require.NoError(t, err)

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Name)
	assert.Equal(t, "first", all[1].Name)
	assert.Equal(t, "second", all[2].Name)
}

func TestManufacturer(t *testing.T) {
	t.Run("parse known values", func(t *testing.T) {
		m, err := registry.ParseManufacturer("Apple")
		require.NoError(t, err)
		assert.Equal(t, registry.ManufacturerApple, m)

		m, err = registry.ParseManufacturer("google")
		require.NoError(t, err)
		assert.Equal(t, registry.ManufacturerGoogle, m)

		m, err = registry.ParseManufacturer("")
		require.NoError(t, err)
		assert.Equal(t, registry.ManufacturerNone, m)
	})

	t.Run("unknown value rejected", func(t *testing.T) {
		_, err := registry.ParseManufacturer("acme")
		require.Error(t, err)
	})

	t.Run("company identifiers", func(t *testing.T) {
		assert.Equal(t, []uint16{0x004C}, registry.ManufacturerApple.CompanyIDs())
		assert.Equal(t, []uint16{0x018E, 0x00E0}, registry.ManufacturerGoogle.CompanyIDs())
		assert.Nil(t, registry.ManufacturerNone.CompanyIDs())
	})

	t.Run("matching", func(t *testing.T) {
		assert.True(t, registry.ManufacturerApple.Matches(0x004C))
		assert.False(t, registry.ManufacturerApple.Matches(0x018E))
		assert.True(t, registry.ManufacturerGoogle.Matches(0x00E0))
		// None matches everything
		assert.True(t, registry.ManufacturerNone.Matches(0x1234))
	})
}
