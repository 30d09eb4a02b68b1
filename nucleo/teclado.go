package nucleo

import (
	"bufio"
	"os"
)

// TecladoConsola lee caracteres de la entrada estándar del host
type TecladoConsola struct {
	lector *bufio.Reader
}

// NuevoTecladoConsola crea el teclado por defecto del kernel
func NuevoTecladoConsola() *TecladoConsola {
	return &TecladoConsola{lector: bufio.NewReader(os.Stdin)}
}

// ObtenerCaracter bloquea hasta que haya un byte disponible
func (t *TecladoConsola) ObtenerCaracter() byte {
	b, err := t.lector.ReadByte()
	if err != nil {
		return 0
	}
	return b
}
