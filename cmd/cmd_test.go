package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flashliquidator/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestEncodeDecodeRoute(t *testing.T) {
	out, err := execute(t, "encode", "route", "--adapter", "uniswapv3", "--fee", "500")
	require.NoError(t, err)
	route := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(route, "0x"))

	out, err = execute(t, "decode", "route", route)
	require.NoError(t, err)
	assert.Contains(t, out, "adapter: uniswapv3")
	assert.Contains(t, out, "fee:     500")
}

func TestEncodeMultiRouterRoute(t *testing.T) {
	a := "0x00000000000000000000000000000000000000aa"
	b := "0x00000000000000000000000000000000000000bb"
	out, err := execute(t, "encode", "route", "--adapter", "multirouter",
		"--tokens", a+","+b,
		"--hop", "0,"+a+","+b+",0,3000,600",
		"--hop", "0,"+a+","+b+",1,0,400,true")
	require.NoError(t, err)

	out, err = execute(t, "decode", "route", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Contains(t, out, "adapter: multirouter")
	assert.Contains(t, out, "level 0:")
	assert.Contains(t, out, "first level input: 1000")
	assert.Contains(t, out, "stable=true")
}

func TestEncodeDecodeLiquidate(t *testing.T) {
	out, err := execute(t, "encode", "route", "--adapter", "direct")
	require.NoError(t, err)
	route := strings.TrimSpace(out)

	out, err = execute(t, "encode", "liquidate",
		"--user", "0x000000000000000000000000000000000000b0b0",
		"--collateral", "0x00000000000000000000000000000000000c0111",
		"--debt", "0x00000000000000000000000000000000000deb70",
		"--amount", "max",
		"--min-out", "1_000",
		"--route", route,
		"--flash-fee", "500")
	require.NoError(t, err)

	out, err = execute(t, "decode", "call", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Contains(t, out, "method: liquidateWithFee")
	assert.Contains(t, out, "amount:     max")
	assert.Contains(t, out, "min out:    1000")
	assert.Contains(t, out, "flash fee:  500")
	assert.Contains(t, out, "  adapter: direct")
}

func TestEncodeLiquidateRejectsBadRoute(t *testing.T) {
	_, err := execute(t, "encode", "liquidate",
		"--user", "0x000000000000000000000000000000000000b0b0",
		"--collateral", "0x00000000000000000000000000000000000c0111",
		"--debt", "0x00000000000000000000000000000000000deb70",
		"--route", "0x01")
	require.Error(t, err)
}

func TestEncodeDecodeAdminCalls(t *testing.T) {
	out, err := execute(t, "encode", "set-adapter", "--tag", "7", "--address", "0x0000000000000000000000000000000000000a07")
	require.NoError(t, err)
	out, err = execute(t, "decode", "call", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Contains(t, out, "method: setAdapter")
	assert.Contains(t, out, "tag:     tag(7)")

	out, err = execute(t, "encode", "rescue", "--token", "0x0000000000000000000000000000000000000000",
		"--max", "--to", "0x00000000000000000000000000000000000000a1")
	require.NoError(t, err)
	out, err = execute(t, "decode", "call", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Contains(t, out, "method: rescueTokens")
	assert.Contains(t, out, "amount: entire balance")
}

func TestConfigInitAndSimulate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	_, err := execute(t, "config", "init", "--defaults", path)
	require.NoError(t, err)

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Scenario, loaded.Scenario)

	out, err := execute(t, "--config", path, "simulate", "--source", "dex", "--pool-fee", "3000")
	require.NoError(t, err)
	assert.Contains(t, out, "success:    true")
	assert.Contains(t, out, "source:     dex_flash_swap")
	assert.Contains(t, out, "profit:     47000")
	assert.Contains(t, out, "events:     1")
}
