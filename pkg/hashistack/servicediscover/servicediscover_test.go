package servicediscover

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistration(t *testing.T) {
	reg := newRegistration("smallbiznis-rewards", "smallbiznis-rewards-host-8080", "10.0.0.5", 8080)

	require.Equal(t, "smallbiznis-rewards-host-8080", reg.ID)
	require.Equal(t, "smallbiznis-rewards", reg.Name)
	require.Equal(t, 8080, reg.Port)
	require.Equal(t, "http://10.0.0.5:8080/readyz", reg.Check.HTTP)
}
