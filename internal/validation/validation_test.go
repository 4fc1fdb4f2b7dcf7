package validation

import (
	"testing"
)

func TestValidateNetworkName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "sepolia", false},
		{"valid with hyphen", "base-sepolia", false},
		{"valid with digits", "l2-testnet-01", false},
		{"too short", "a", true},
		{"uppercase", "Sepolia", true},
		{"starts with digit", "1sepolia", true},
		{"consecutive hyphens", "base--sepolia", true},
		{"trailing hyphen", "sepolia-", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNetworkName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNetworkName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRPCURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://eth-sepolia.example.com/v2/key", false},
		{"http localhost", "http://localhost:8545", false},
		{"websocket", "wss://eth-sepolia.example.com", false},
		{"empty", "", true},
		{"no scheme", "eth-sepolia.example.com", true},
		{"file scheme", "file:///etc/passwd", true},
		{"scheme only", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRPCURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRPCURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid lowercase", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"valid checksummed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"too short", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beae", true},
		{"no prefix", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed00", true},
		{"non-hex", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaeg", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTxHash(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b", false},
		{"too short", "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a71394", true},
		{"no prefix", "88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b00", true},
		{"non-hex", "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a71394zz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTxHash(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTxHash(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateHexKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", false},
		{"valid with prefix", "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", false},
		{"too short", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f3623", true},
		{"non-hex", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f3623xx", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHexKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHexKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeSolcVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0.8.20", "0.8.20"},
		{"v0.8.20", "0.8.20"},
		{"0.8.20+commit.a1b2c3d4", "0.8.20"},
		{"v0.8.28+commit.7893614a", "0.8.28"},
	}

	for _, tt := range tests {
		if got := NormalizeSolcVersion(tt.input); got != tt.want {
			t.Errorf("NormalizeSolcVersion(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidateSolcVersion(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"0.8.20", false},
		{"v0.8.20", false},
		{"0.8.28+commit.7893614a", false},
		{"0.8", true},
		{"", true},
		{"banana", true},
	}

	for _, tt := range tests {
		err := ValidateSolcVersion(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSolcVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestCompareSolcVersions(t *testing.T) {
	tests := []struct {
		v1, v2 string
		want   int
	}{
		{"0.8.19", "0.8.20", -1},
		{"0.8.20", "0.8.20", 0},
		{"0.8.20+commit.a1b2c3d4", "0.8.20", 0},
		{"0.8.21", "0.8.20", 1},
	}

	for _, tt := range tests {
		if got := CompareSolcVersions(tt.v1, tt.v2); got != tt.want {
			t.Errorf("CompareSolcVersions(%q, %q) = %d, want %d", tt.v1, tt.v2, got, tt.want)
		}
	}
}
